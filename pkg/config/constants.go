package config

const (
	EnvPrefix = "TABLY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)
