package config

const EnvPrefix = "PACKFINDERZ"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvPort     = "PACKFINDERZ_APP_PORT"
	EnvLogLevel = "PACKFINDERZ_LOG_LEVEL"

	EnvDBDSN  = "PACKFINDERZ_DB_DSN"
	EnvDBHost = "PACKFINDERZ_DB_HOST"
	EnvDBUser = "PACKFINDERZ_DB_USER"
	EnvDBName = "PACKFINDERZ_DB_NAME"

	EnvUseSQLite = "PACKFINDERZ_USE_SQLITE"
	EnvRedisURL  = "PACKFINDERZ_REDIS_URL"

	EnvBackofficeBaseURL = "PACKFINDERZ_BACKOFFICE_BASE_URL"
	EnvBackofficeTimeout = "PACKFINDERZ_BACKOFFICE_TIMEOUT"

	EnvCheckoutPrintMode = "PACKFINDERZ_CHECKOUT_PRINT_MODE"

	EnvLoyaltyPointsPerUnit = "PACKFINDERZ_LOYALTY_POINTS_PER_UNIT"
	EnvLoyaltyRewardTiers   = "PACKFINDERZ_LOYALTY_REWARD_TIERS"
	EnvLoyaltyDebitMode     = "PACKFINDERZ_LOYALTY_DEBIT_MODE"
)
