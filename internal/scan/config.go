package scan

import "time"

// Config holds scan configuration
type Config struct {
	Version   string         // reported in ScanResult.Version
	Auxiliary bool           // run the replace scanner for the pass
	Location  *time.Location // zone of ExecutionTime strings, Local when nil
}

// DefaultConfig returns the default scan configuration
func DefaultConfig() Config {
	return Config{
		Version:   "dev",
		Auxiliary: true,
		Location:  time.Local,
	}
}
