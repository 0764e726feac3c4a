package config

const (
	EnvPrefix = "TIXMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv     = "TIXMARKET_APP_ENV"
	EnvPort       = "TIXMARKET_APP_PORT"
	EnvDBDSN      = "TIXMARKET_DB_DSN"
	EnvDBHost     = "TIXMARKET_DB_HOST"
	EnvDBUser     = "TIXMARKET_DB_USER"
	EnvDBName     = "TIXMARKET_DB_NAME"
	EnvRedisURL   = "TIXMARKET_REDIS_URL"
	EnvJWTSecret  = "TIXMARKET_JWT_SECRET"
	EnvJWTIssuer  = "TIXMARKET_JWT_ISSUER"
	EnvServiceKey = "TIXMARKET_INTERNAL_SERVICE_KEY"

	EnvEscrowFeeRate       = "TIXMARKET_ESCROW_FEE_RATE"
	EnvEscrowHoldingPeriod = "TIXMARKET_ESCROW_HOLDING_PERIOD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
