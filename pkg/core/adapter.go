package core

// AdapterConfig holds configuration for connecting to a database.
type AdapterConfig struct {
	Type     string `koanf:"type" mapstructure:"type"`
	DSN      string `koanf:"dsn" mapstructure:"dsn"`
	Path     string `koanf:"path" mapstructure:"path"`
	Host     string `koanf:"host" mapstructure:"host"`
	Port     int    `koanf:"port" mapstructure:"port"`
	Database string `koanf:"database" mapstructure:"database"`
	Username string `koanf:"username" mapstructure:"username"`
	Password string `koanf:"password" mapstructure:"password"`
	// Params holds adapter specific settings, decoded by each adapter.
	Params map[string]any `koanf:"params" mapstructure:"params"`
}
