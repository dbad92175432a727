package config

// EnvPrefix is the envconfig prefix shared by every DriveLoop binary.
const EnvPrefix = "driveloop"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "DRIVELOOP_APP_ENV"
	EnvDBDSN  = "DRIVELOOP_DB_DSN"
	EnvDBHost = "DRIVELOOP_DB_HOST"
	EnvDBUser = "DRIVELOOP_DB_USER"
	EnvDBName = "DRIVELOOP_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
