package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/data"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// Default generation constants.
const (
	defaultCount     = 5000
	defaultSpecies   = 151
	defaultShinyOdds = 64 // one in N
	defaultScanOdds  = 2  // one in N sightings has no quality attributes
	batchSize        = 500
)

func main() {
	var (
		count     = flag.Int("count", defaultCount, "Number of observations to insert")
		species   = flag.Int("species", defaultSpecies, "Highest entity id to generate")
		hours     = flag.Int("hours", 24, "Spread expiry times over the last N hours")
		shinyOdds = flag.Int("shiny-odds", defaultShinyOdds, "One in N observations is shiny")
		seed      = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	)
	flag.Parse()

	log := logging.Init(os.Stderr)
	ctx := context.Background()

	cfg, err := conf.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}

	obsRepo, err := data.NewObservationRepo(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Error(ctx, "failed to open observation store", logging.Err(err))
		os.Exit(1)
	}
	defer obsRepo.Close()

	rng := rand.New(rand.NewPCG(*seed, *seed))
	to := time.Now()
	obs := generate(rng, *count, *species, *shinyOdds, to.Add(-time.Duration(*hours)*time.Hour), to)

	for start := 0; start < len(obs); start += batchSize {
		end := min(start+batchSize, len(obs))
		if err := obsRepo.Save(ctx, obs[start:end]...); err != nil {
			log.Error(ctx, "failed to save observations", logging.Int("offset", start), logging.Err(err))
			os.Exit(1)
		}
	}

	log.Info(ctx, "observations seeded",
		logging.Int("count", len(obs)),
		logging.String("driver", cfg.Database.Driver),
		logging.Uint64("seed", *seed))
}

// generate builds n observations with expiry times spread over [from, to)
func generate(rng *rand.Rand, n, species, shinyOdds int, from, to time.Time) []domain.RawObservation {
	if species < 1 {
		species = 1
	}
	if shinyOdds < 1 {
		shinyOdds = 1
	}
	span := to.Unix() - from.Unix()
	if span < 1 {
		span = 1
	}

	obs := make([]domain.RawObservation, 0, n)
	for range n {
		o := domain.RawObservation{
			EntityID:        uint32(rng.IntN(species) + 1),
			Shiny:           rng.IntN(shinyOdds) == 0,
			ExpireTimestamp: from.Unix() + rng.Int64N(span),
		}
		if rng.IntN(defaultScanOdds) == 0 {
			o.Attack = attr(rng)
			o.Defense = attr(rng)
			o.Stamina = attr(rng)
		}
		obs = append(obs, o)
	}
	return obs
}

func attr(rng *rand.Rand) *uint16 {
	v := uint16(rng.IntN(domain.MaxQualityAttribute + 1))
	return &v
}
