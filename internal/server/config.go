package server

type HttpConfig struct {
	Host string     `conf:"host"`
	Port int        `conf:"port"`
	H2c  bool       `conf:"h2c"`
	Cors CorsConfig `conf:"cors"`
}

type CorsConfig struct {
	// AllowedOrigins lists the origins allowed to call the API from a
	// browser. "*" allows every origin. CORS is disabled if empty.
	AllowedOrigins []string `conf:"allowed_origins"`
}
