// Package config loads skill configuration from the environment.
package config

import "github.com/caarlos0/env/v11"

// Notify configures the Moltbook notification tracker.
type Notify struct {
	APIBase               string `env:"MOLTBOOK_API_BASE"    envDefault:"https://www.moltbook.com/api/v1"`
	Credentials           string `env:"MOLTBOOK_CREDENTIALS" envDefault:"/workspace/.moltbook/credentials.json"`
	StateDir              string `env:"MOLTBOOK_STATE_DIR"   envDefault:"/workspace/.moltbook"`
	StateBucket           string `env:"STATE_BUCKET"`
	GoogleCredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`
}

// Usage configures the capacity advisor.
type Usage struct {
	StateDir              string `env:"CLAUDE_STATE_DIR"   envDefault:"/workspace/.claude"`
	SessionDir            string `env:"CLAUDE_SESSION_DIR"` // empty: ~/.claude/projects/-workspace
	StateBucket           string `env:"STATE_BUCKET"`
	GoogleCredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`
}

// Wallet configures the Ethereum wallet.
type Wallet struct {
	KeyFile string `env:"WALLET_KEY_FILE" envDefault:"/workspace/.secrets/wallet.key"`
	Network string `env:"WALLET_NETWORK"  envDefault:"base-sepolia"`
}

func LoadNotify() (Notify, error) { return env.ParseAs[Notify]() }

func LoadUsage() (Usage, error) { return env.ParseAs[Usage]() }

func LoadWallet() (Wallet, error) { return env.ParseAs[Wallet]() }
