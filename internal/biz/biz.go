package biz

import (
	"github.com/pogostats/feishu-stats-reporter/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Stats    *usecase.StatsUsecase
	Reporter *usecase.ChannelReporter
}
