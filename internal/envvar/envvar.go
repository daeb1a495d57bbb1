package envvar

const (
	// Env selects the logging flavour ("development" or "production").
	Env = "CAULICARE_ENV"

	// Port overrides the configured HTTP port.
	Port = "PORT"

	// ORTLibrary points at the onnxruntime shared library.
	ORTLibrary = "ONNXRUNTIME_LIB"
)
