package config

import "github.com/spf13/viper"

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Economy struct {
		// Account that receives redemption and membership proceeds and
		// that spends from token-denominated buckets.
		TreasuryAccount string `mapstructure:"treasury_account"`
		// Identity the membership registry reports payments under; must
		// be on the treasury caller allowlist.
		MembershipCaller string `mapstructure:"membership_caller"`
		// Account implicitly treated as admin even with no granted role.
		AdminAccount string `mapstructure:"admin_account"`

		// Oracle bounds for the token/fiat exchange rate, 6dp strings.
		MinExchangeRate string `mapstructure:"min_exchange_rate"`
		MaxExchangeRate string `mapstructure:"max_exchange_rate"`

		DefaultMarginBps int64 `mapstructure:"default_margin_bps"`
		// Balance at or above which an account gets the halved rate,
		// in whole tokens.
		DiscountThresholdTokens int64 `mapstructure:"discount_threshold_tokens"`
	} `mapstructure:"economy"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("economy.default_margin_bps", 4000)
	v.SetDefault("economy.discount_threshold_tokens", 100)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
