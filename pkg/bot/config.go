package bot

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/masahide/mcpanel/pkg/healthapi"
	"github.com/masahide/mcpanel/pkg/metrics"
	"github.com/masahide/mcpanel/pkg/panel"
	"github.com/masahide/mcpanel/pkg/source"
)

// CommandPolicy decides who sees the slash commands.
type CommandPolicy string

const (
	PolicyPublic CommandPolicy = "public"
	PolicyAdmin  CommandPolicy = "admin"
)

// RegisterScope decides where the slash commands are registered.
type RegisterScope string

const (
	ScopeGlobal RegisterScope = "global"
	ScopeGuild  RegisterScope = "guild"
)

// LocationKind decides whether a panel is kept per channel or per guild.
type LocationKind string

const (
	LocationChannel LocationKind = "channel"
	LocationGuild   LocationKind = "guild"
)

const minInterval = 15 * time.Second

type Config struct {
	DiscordToken string `envconfig:"DISCORD_TOKEN" required:"true"`
	// application id
	ClientID string `envconfig:"CLIENT_ID" required:"true"`

	// public address shown on the panel, ip:port or domain:port
	MCAddress string `envconfig:"MC_ADDRESS" required:"true"`
	MCName    string `envconfig:"MC_NAME" default:"Aurora SMP"`

	CommandPolicy CommandPolicy `envconfig:"COMMAND_POLICY" default:"public"`
	RegisterScope RegisterScope `envconfig:"REGISTER_SCOPE" default:"global"`
	GuildIDs      []string      `envconfig:"GUILD_IDS"`
	LocationKey   LocationKind  `envconfig:"LOCATION_KEY" default:"channel"`

	StatusUpdateSeconds   int           `envconfig:"STATUS_UPDATE_SECONDS" default:"60"`
	PresenceUpdateSeconds int           `envconfig:"PRESENCE_UPDATE_SECONDS" default:"60"`
	QueryTimeout          time.Duration `envconfig:"QUERY_TIMEOUT" default:"6s"`
	StateFile             string        `envconfig:"STATE_FILE" default:"panel_state.json"`

	InviteURL         string `envconfig:"DISCORD_INVITE_URL"`
	WebsiteURL        string `envconfig:"WEBSITE_URL"`
	StoreURL          string `envconfig:"STORE_URL"`
	ModpackURL        string `envconfig:"MODPACK_URL"`
	PanelThumbnailURL string `envconfig:"PANEL_THUMBNAIL_URL"`
	PanelBannerURL    string `envconfig:"PANEL_BANNER_URL"`
	BarWidth          int    `envconfig:"BAR_WIDTH" default:"14"`

	Debug bool `envconfig:"DEBUG" default:"false"`

	source.Env
	healthapi.Config
	metrics.Options
}

// LoadConfig reads .env files (when present) and then the environment.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	c.fillDefaults()
	return c, c.Validate()
}

func (c *Config) fillDefaults() {
	if c.QueryHost == "" {
		c.QueryHost = hostOf(c.MCAddress)
	}
	if c.BarWidth <= 0 {
		c.BarWidth = panel.DefaultBarWidth
	}
}

// hostOf strips the port from "host:port". Bare hosts are returned as is.
func hostOf(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return strings.TrimSpace(addr)
}

// Validate checks enumerations and the settings the status source needs.
func (c Config) Validate() error {
	var errs []error
	switch c.CommandPolicy {
	case PolicyPublic, PolicyAdmin:
	default:
		errs = append(errs, fmt.Errorf("COMMAND_POLICY must be public or admin, got %q", c.CommandPolicy))
	}
	switch c.RegisterScope {
	case ScopeGlobal:
	case ScopeGuild:
		if len(c.GuildIDs) == 0 {
			errs = append(errs, errors.New("REGISTER_SCOPE=guild needs GUILD_IDS"))
		}
	default:
		errs = append(errs, fmt.Errorf("REGISTER_SCOPE must be global or guild, got %q", c.RegisterScope))
	}
	switch c.LocationKey {
	case LocationChannel, LocationGuild:
	default:
		errs = append(errs, fmt.Errorf("LOCATION_KEY must be channel or guild, got %q", c.LocationKey))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("QUERY_TIMEOUT must be positive"))
	}
	if err := c.Env.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func interval(seconds int) time.Duration {
	return max(minInterval, time.Duration(seconds)*time.Second)
}

// StatusInterval is the panel refresh period, at least 15s.
func (c Config) StatusInterval() time.Duration { return interval(c.StatusUpdateSeconds) }

// PresenceInterval is the presence refresh period, at least 15s.
func (c Config) PresenceInterval() time.Duration { return interval(c.PresenceUpdateSeconds) }

// PanelOptions are the static parts of the rendered panel.
func (c Config) PanelOptions() panel.Options {
	return panel.Options{
		ServerName:   c.MCName,
		Address:      c.MCAddress,
		InviteURL:    c.InviteURL,
		WebsiteURL:   c.WebsiteURL,
		StoreURL:     c.StoreURL,
		ModpackURL:   c.ModpackURL,
		ThumbnailURL: c.PanelThumbnailURL,
		BannerURL:    c.PanelBannerURL,
		BarWidth:     c.BarWidth,
	}
}
