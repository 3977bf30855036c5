// Command rvcbridge runs the RV-C-to-MQTT bridge: it decodes CAN
// traffic off an SLCAN-over-TCP transport, projects it onto home-
// automation entity state, and accepts commands back onto the bus.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/serebryakov7/rvcbridge/internal/audit"
	"github.com/serebryakov7/rvcbridge/internal/command"
	"github.com/serebryakov7/rvcbridge/internal/config"
	"github.com/serebryakov7/rvcbridge/internal/entity"
	"github.com/serebryakov7/rvcbridge/internal/mqttbridge"
	"github.com/serebryakov7/rvcbridge/internal/rvcdecode"
	"github.com/serebryakov7/rvcbridge/internal/rvcspec"
	"github.com/serebryakov7/rvcbridge/internal/slcan"
)

var configPath = flag.String("config", "rvcbridge.ini", "path to the bridge's INI configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := audit.New(cfg.AuditLogPath)
	defer log.Sync()

	log.Info("rvcbridge starting", zap.String("config", *configPath))

	cacheDB, err := rvcspec.OpenCacheDB(cfg.CacheFile)
	if err != nil {
		log.Fatal("opening spec cache", zap.Error(err))
	}
	defer cacheDB.Close()

	registry, err := rvcspec.LoadCached(cfg.SpecFile, cacheDB)
	if err != nil {
		log.Fatal("loading spec registry", zap.Error(err))
	}

	index, err := entity.LoadMapping(cfg.MappingFile)
	if err != nil {
		log.Fatal("loading entity mapping", zap.Error(err))
	}

	decoder := rvcdecode.New(registry)
	projector := entity.NewProjector(index)

	mqttClient := mqttbridge.NewClient(mqttbridge.Config{
		Broker:       cfg.MQTTBroker,
		ClientID:     cfg.MQTTClientID,
		StateTopic:   cfg.MQTTStateTopic,
		CommandTopic: cfg.MQTTCommandTopic,
		AckTopic:     cfg.MQTTAckTopic,
		ErrorTopic:   cfg.MQTTErrorTopic,
	}, log)
	if err := mqttClient.Connect(); err != nil {
		log.Fatal("connecting to mqtt broker", zap.Error(err))
	}
	defer mqttClient.Disconnect()

	if err := mqttClient.PublishDiscovery(index, cfg.DiscoveryPrefix); err != nil {
		log.Warn("publishing discovery", zap.Error(err))
	}

	bus := slcan.Dial(cfg.SLCANAddress, 2*time.Second, log)

	limiter := command.NewRateLimiter(command.RateLimitConfig{
		GlobalWindow: time.Second,
		GlobalBudget: cfg.GlobalRate,
		EntityWindow: time.Second,
		EntityBudget: cfg.EntityRate,
		Cooldown:     cfg.EntityCooldownMs,
	})
	validator := command.NewValidator(index, command.Policy{
		Denylist:        cfg.Denylist,
		Allowlist:       cfg.Allowlist,
		AllowedFamilies: familiesOf(cfg.AllowedFamilies),
	}, limiter)
	codec := command.NewCodec(cfg.SourceAddress)
	transmitter := command.NewTransmitter(bus, cfg.RetryCount, cfg.RetryDelayMs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return runRX(gctx, bus, decoder, projector, mqttClient, log) })
	g.Go(func() error {
		return runEgress(gctx, mqttClient, validator, codec, transmitter, index, mqttClient, log)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Error("rvcbridge exiting on error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("rvcbridge shut down")
}

func familiesOf(set map[string]bool) map[command.Family]bool {
	out := make(map[command.Family]bool, len(set))
	for k := range set {
		out[command.Family(k)] = true
	}
	return out
}

// runRX is the receive loop: it pulls parsed SLCAN frames,
// decodes and projects them, and publishes the resulting state events.
// It never blocks on the command egress path.
func runRX(ctx context.Context, bus *slcan.Conn, decoder *rvcdecode.Decoder, projector *entity.Projector, pub *mqttbridge.Client, log *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-bus.Frames():
			if !ok {
				return nil
			}
			msg, err := decoder.Decode(rvcdecode.RawFrame{ArbID: raw.ArbID, Data: raw.Data, Length: raw.Length})
			if err != nil {
				log.Warn("frame decode failed", zap.Uint32("arb_id", raw.ArbID), zap.Error(err))
				continue
			}
			for _, ev := range projector.Project(msg) {
				if err := pub.PublishState(ev); err != nil {
					log.Warn("publish state failed", zap.String("entity_id", ev.EntityID), zap.Error(err))
				}
			}
		}
	}
}

// runEgress is the command-egress loop: it dequeues
// candidate commands in FIFO order, runs the validator, encodes,
// transmits, and reports exactly one ack or error per command.
func runEgress(
	ctx context.Context,
	ingress *mqttbridge.Client,
	validator *command.Validator,
	codec *command.Codec,
	transmitter *command.Transmitter,
	index *entity.Index,
	pub *mqttbridge.Client,
	log *zap.Logger,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cand, ok := <-ingress.Ingress():
			if !ok {
				return nil
			}
			handleCommand(ctx, cand, validator, codec, transmitter, index, pub, log)
		}
	}
}

func handleCommand(
	ctx context.Context,
	cand command.CandidateCommand,
	validator *command.Validator,
	codec *command.Codec,
	transmitter *command.Transmitter,
	index *entity.Index,
	pub *mqttbridge.Client,
	log *zap.Logger,
) {
	norm, err := validator.Validate(cand)
	if err != nil {
		report(pub, command.ToCommandError(cand.EntityID, err), log)
		return
	}

	desc, _ := index.ByEntityID(cand.EntityID)
	seq, err := codec.Encode(norm, desc)
	if err != nil {
		report(pub, command.ToCommandError(cand.EntityID, err), log)
		return
	}

	if err := transmitter.Transmit(ctx, seq); err != nil {
		report(pub, command.ToCommandError(cand.EntityID, err), log)
		return
	}

	ack := command.CommandAck{
		EntityID:  norm.EntityID,
		Family:    norm.Family,
		Action:    norm.Action,
		Value:     norm.Value,
		LatencyMs: time.Since(norm.TSEnqueued).Milliseconds(),
	}
	if err := pub.PublishAck(ack); err != nil {
		log.Warn("publish ack failed", zap.String("entity_id", ack.EntityID), zap.Error(err))
	}
}

func report(pub *mqttbridge.Client, ce command.CommandError, log *zap.Logger) {
	log.Warn("command rejected", zap.String("entity_id", ce.EntityID), zap.String("code", ce.Code), zap.String("message", ce.Message))
	if err := pub.PublishError(ce); err != nil {
		log.Warn("publish error failed", zap.String("entity_id", ce.EntityID), zap.Error(err))
	}
}
