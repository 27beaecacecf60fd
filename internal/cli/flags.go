package cli

// Flags holds all command-line flag values
type Flags struct {
	// Global flags
	CfgFile  string
	LogLevel string
	DBPath   string

	// serve
	Addr string

	// seed
	Reset bool

	// programs
	Level string
	Kind  string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{}
}
