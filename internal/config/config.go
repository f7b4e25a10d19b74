package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/core/ports"
	"github.com/quantummint/qmintd/internal/infrastructure/events"
	"github.com/quantummint/qmintd/internal/infrastructure/interceptor"
	"github.com/quantummint/qmintd/internal/infrastructure/network"
	"github.com/quantummint/qmintd/internal/infrastructure/randsource"
	"github.com/quantummint/qmintd/pkg/qsim"
)

var (
	logLevelFlag = &cli.IntFlag{
		Name:    "log-level",
		Usage:   "logging level: 0 panic, 1 fatal, 2 error, 3 warn, 4 info, 5 debug, 6 trace",
		Value:   int(log.InfoLevel),
		EnvVars: env("LOG_LEVEL"),
	}
	tokenCountFlag = &cli.IntFlag{
		Name:    "token-count",
		Usage:   "number of tokens minted and distributed per run",
		Value:   2,
		EnvVars: env("TOKEN_COUNT"),
	}
	unitsPerTokenFlag = &cli.IntFlag{
		Name:    "units-per-token",
		Usage:   "number of quantum units encoding each token",
		Value:   8,
		EnvVars: env("UNITS_PER_TOKEN"),
	}
	waitTimeoutFlag = &cli.DurationFlag{
		Name:    "wait-timeout",
		Usage:   "how long a party waits for an expected message before giving up",
		Value:   10 * time.Second,
		EnvVars: env("WAIT_TIMEOUT"),
	}
	ackTimeoutFlag = &cli.DurationFlag{
		Name:    "ack-timeout",
		Usage:   "how long a sender waits for a delivery ack",
		Value:   10 * time.Second,
		EnvVars: env("ACK_TIMEOUT"),
	}
	redeemSerialFlag = &cli.Uint64Flag{
		Name:    "redeem-serial",
		Usage:   "serial the holder redeems, all others are disposed of",
		Value:   0,
		EnvVars: env("REDEEM_SERIAL"),
	}
	interceptPolicyFlag = &cli.StringFlag{
		Name:    "intercept-policy",
		Usage:   fmt.Sprintf("relay transformation policy: %s", supportedInterceptPolicies),
		Value:   "identity",
		EnvVars: env("INTERCEPT_POLICY"),
	}
	interceptSenderFlag = &cli.StringFlag{
		Name:    "intercept-sender",
		Usage:   "restrict the bitflip policy to units sent by this party, empty flips all",
		EnvVars: env("INTERCEPT_SENDER"),
	}
	interceptProbFlag = &cli.Float64Flag{
		Name:    "intercept-prob",
		Usage:   "flip probability of the random policy",
		Value:   0.5,
		EnvVars: env("INTERCEPT_PROB"),
	}
	interceptSeedFlag = &cli.Int64Flag{
		Name:    "intercept-seed",
		Usage:   "seed of the random policy, 0 picks a fresh one",
		EnvVars: env("INTERCEPT_SEED"),
	}
	randSourceFlag = &cli.StringFlag{
		Name:    "rand-source",
		Usage:   fmt.Sprintf("token randomness source: %s", supportedRandSources),
		Value:   "crypto",
		EnvVars: env("RAND_SOURCE"),
	}
	randSeedFlag = &cli.Int64Flag{
		Name:    "rand-seed",
		Usage:   "seed used by the seeded source and the simulated collapse",
		Value:   1,
		EnvVars: env("RAND_SEED"),
	}
	channelBufferFlag = &cli.IntFlag{
		Name:    "channel-buffer",
		Usage:   "per-channel transport buffer size",
		Value:   64,
		EnvVars: env("CHANNEL_BUFFER"),
	}
	otelCollectorEndpointFlag = &cli.StringFlag{
		Name:    "otel-collector-endpoint",
		Usage:   "OTLP/HTTP collector endpoint, empty disables metrics",
		EnvVars: env("OTEL_COLLECTOR_ENDPOINT"),
	}
	otelPushIntervalFlag = &cli.Int64Flag{
		Name:    "otel-push-interval",
		Usage:   "metric push interval in seconds",
		Value:   10,
		EnvVars: env("OTEL_PUSH_INTERVAL"),
	}
)

var Flags = []cli.Flag{
	logLevelFlag,
	tokenCountFlag,
	unitsPerTokenFlag,
	waitTimeoutFlag,
	ackTimeoutFlag,
	redeemSerialFlag,
	interceptPolicyFlag,
	interceptSenderFlag,
	interceptProbFlag,
	interceptSeedFlag,
	randSourceFlag,
	randSeedFlag,
	channelBufferFlag,
	otelCollectorEndpointFlag,
	otelPushIntervalFlag,
}

func env(envVars ...string) []string {
	vars := make([]string, 0, len(envVars))
	for _, envVar := range envVars {
		vars = append(vars, fmt.Sprintf("QMINTD_%s", envVar))
	}
	return vars
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}

var (
	supportedRandSources = supportedType{
		"crypto": {},
		"seeded": {},
	}
	supportedInterceptPolicies = supportedType{
		"identity": {},
		"bitflip":  {},
		"random":   {},
	}
)

type Config struct {
	LogLevel              int
	TokenCount            int
	UnitsPerToken         int
	WaitTimeout           time.Duration
	AckTimeout            time.Duration
	RedeemSerial          uint64
	InterceptPolicy       string
	InterceptSender       string
	InterceptProb         float64
	InterceptSeed         int64
	RandSource            string
	RandSeed              int64
	ChannelBuffer         int
	OtelCollectorEndpoint string
	OtelPushInterval      int64

	backend        qsim.Backend
	bitSource      ports.BitSource
	eventBus       ports.EventBus
	network        *network.Network
	issuerEndpoint ports.Endpoint
	holderEndpoint ports.Endpoint
}

func LoadConfig(c *cli.Context) (*Config, error) {
	cfg := &Config{
		LogLevel:              c.Int(logLevelFlag.Name),
		TokenCount:            c.Int(tokenCountFlag.Name),
		UnitsPerToken:         c.Int(unitsPerTokenFlag.Name),
		WaitTimeout:           c.Duration(waitTimeoutFlag.Name),
		AckTimeout:            c.Duration(ackTimeoutFlag.Name),
		RedeemSerial:          c.Uint64(redeemSerialFlag.Name),
		InterceptPolicy:       c.String(interceptPolicyFlag.Name),
		InterceptSender:       c.String(interceptSenderFlag.Name),
		InterceptProb:         c.Float64(interceptProbFlag.Name),
		InterceptSeed:         c.Int64(interceptSeedFlag.Name),
		RandSource:            c.String(randSourceFlag.Name),
		RandSeed:              c.Int64(randSeedFlag.Name),
		ChannelBuffer:         c.Int(channelBufferFlag.Name),
		OtelCollectorEndpoint: c.String(otelCollectorEndpointFlag.Name),
		OtelPushInterval:      c.Int64(otelPushIntervalFlag.Name),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every parameter and builds the run's adapters: backend,
// bit source, event bus and the network with both party endpoints.
func (c *Config) Validate() error {
	if c.LogLevel < 0 || c.LogLevel > int(log.TraceLevel) {
		return fmt.Errorf("log level must be in range [0, %d]", int(log.TraceLevel))
	}
	if c.TokenCount <= 0 {
		return fmt.Errorf("token count must be positive")
	}
	if c.UnitsPerToken <= 0 {
		return fmt.Errorf("units per token must be positive")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack timeout must be positive")
	}
	if c.RedeemSerial >= uint64(c.TokenCount) {
		return fmt.Errorf(
			"redeem serial %d out of range, %d tokens are minted",
			c.RedeemSerial, c.TokenCount,
		)
	}
	if !supportedInterceptPolicies.supports(c.InterceptPolicy) {
		return fmt.Errorf(
			"intercept policy %q not supported, must be one of: %s",
			c.InterceptPolicy, supportedInterceptPolicies,
		)
	}
	if c.InterceptProb < 0 || c.InterceptProb > 1 {
		return fmt.Errorf("intercept probability must be in [0, 1]")
	}
	if !supportedRandSources.supports(c.RandSource) {
		return fmt.Errorf(
			"rand source %q not supported, must be one of: %s",
			c.RandSource, supportedRandSources,
		)
	}
	if c.ChannelBuffer <= 0 {
		return fmt.Errorf("channel buffer must be positive")
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval <= 0 {
		return fmt.Errorf("otel push interval must be positive")
	}

	c.backendService()
	c.bitSourceService()
	if err := c.eventBusService(); err != nil {
		return err
	}
	return c.networkService()
}

func (c *Config) Backend() qsim.Backend          { return c.backend }
func (c *Config) BitSource() ports.BitSource     { return c.bitSource }
func (c *Config) EventBus() ports.EventBus       { return c.eventBus }
func (c *Config) Network() *network.Network      { return c.network }
func (c *Config) IssuerEndpoint() ports.Endpoint { return c.issuerEndpoint }
func (c *Config) HolderEndpoint() ports.Endpoint { return c.holderEndpoint }

func (c *Config) String() string {
	return fmt.Sprintf(
		"tokens=%d units=%d wait=%s ack=%s redeem=%d policy=%s rand=%s buffer=%d",
		c.TokenCount, c.UnitsPerToken, c.WaitTimeout, c.AckTimeout,
		c.RedeemSerial, c.InterceptPolicy, c.RandSource, c.ChannelBuffer,
	)
}

func (c *Config) backendService() {
	if c.RandSource == "seeded" {
		c.backend = qsim.NewSeededStateVector(c.RandSeed)
		return
	}
	c.backend = qsim.NewStateVector()
}

func (c *Config) bitSourceService() {
	switch c.RandSource {
	case "seeded":
		c.bitSource = randsource.Seeded(c.RandSeed)
	default:
		c.bitSource = randsource.Crypto()
	}
}

func (c *Config) eventBusService() error {
	bus, err := events.NewBus(c.ChannelBuffer, network.NewWatermillLogger())
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	c.eventBus = bus
	return nil
}

func (c *Config) interceptorService() ports.Interceptor {
	switch c.InterceptPolicy {
	case "bitflip":
		return interceptor.BitFlip(domain.PartyID(c.InterceptSender))
	case "random":
		return interceptor.Random(c.InterceptProb, c.InterceptSeed)
	default:
		return interceptor.Identity()
	}
}

func (c *Config) networkService() error {
	netw, err := network.New(network.Config{
		Backend:     c.backend,
		EventBus:    c.eventBus,
		Relay:       domain.PartyRelay,
		Interceptor: c.interceptorService(),
		AckTimeout:  c.AckTimeout,
		Buffer:      c.ChannelBuffer,
	})
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	issuerEndpoint, err := netw.AddParty(domain.PartyIssuer)
	if err != nil {
		return fmt.Errorf("add issuer party: %w", err)
	}
	holderEndpoint, err := netw.AddParty(domain.PartyHolder)
	if err != nil {
		return fmt.Errorf("add holder party: %w", err)
	}

	c.network = netw
	c.issuerEndpoint = issuerEndpoint
	c.holderEndpoint = holderEndpoint
	return nil
}
