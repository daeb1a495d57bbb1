package model

// ClassLabels are the disease classes, indexed by model output position.
// Every configured model must emit exactly len(ClassLabels) scores in this order.
var ClassLabels = []string{
	"Alternaria_Leaf_Spot",
	"Bacterial spot rot",
	"Black Rot",
	"Cabbage aphid colony",
	"Downy Mildew",
	"No disease",
	"club root",
	"ring spot",
}

// NumClasses is the expected output vector length.
var NumClasses = len(ClassLabels)
