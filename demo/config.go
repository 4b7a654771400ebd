package demo

import "time"

// Config is a configuration for the demo merchant application
type Config struct {
	HTTPAddr string `yaml:"http_addr" env:"CSOB_HTTP_ADDR" env-default:"localhost:9000"`
	// ReturnURL is where the gateway sends the customer back; defaults to
	// this app's /payments/return.
	ReturnURL string `yaml:"return_url" env:"CSOB_RETURN_URL"`
	// DBDSN selects the Postgres journal; the in-memory journal is used when empty.
	DBDSN string `yaml:"db_dsn" env:"CSOB_DB_DSN"`
	// OrderNoLength is the length of generated order numbers.
	OrderNoLength int `yaml:"order_no_length" env:"CSOB_ORDER_NO_LENGTH" env-default:"10"`
	// ReturnMaxAge rejects return redirects whose dttm is older; zero
	// disables the check.
	ReturnMaxAge time.Duration `yaml:"return_max_age" env:"CSOB_RETURN_MAX_AGE" env-default:"30m"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:      "localhost:9000",
		OrderNoLength: 10,
		ReturnMaxAge:  30 * time.Minute,
	}
}
