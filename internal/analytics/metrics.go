package analytics

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics aggregates game_finished events.
type Metrics struct {
	mu           sync.Mutex
	totalGames   int
	outcomes     map[string]map[string]int // difficulty -> outcome -> count
	durations    []float64
	moveCounts   []float64
	gamesPerHour map[string]int
}

type Summary struct {
	TotalGames      int                       `json:"totalGames"`
	Outcomes        map[string]map[string]int `json:"outcomes"`
	AverageDuration float64                   `json:"averageDuration"`
	AverageMoves    float64                   `json:"averageMoves"`
	BusiestHour     string                    `json:"busiestHour"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		outcomes:     make(map[string]map[string]int),
		gamesPerHour: make(map[string]int),
	}
}

// Record folds e into the totals and reports whether it was counted.
func (m *Metrics) Record(e Event) bool {
	if e.Event != EventGameFinished {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalGames++

	difficulty, _ := e.Payload["difficulty"].(string)
	if difficulty == "" {
		difficulty = "unknown"
	}
	outcome, _ := e.Payload["outcome"].(string)
	if outcome == "" {
		outcome = "none"
	}
	if m.outcomes[difficulty] == nil {
		m.outcomes[difficulty] = make(map[string]int)
	}
	m.outcomes[difficulty][outcome]++

	// Numbers arrive as float64 after a JSON round trip.
	if d, ok := e.Payload["duration"].(float64); ok {
		m.durations = append(m.durations, d)
	}
	if n, ok := e.Payload["moves"].(float64); ok {
		m.moveCounts = append(m.moveCounts, n)
	}
	m.gamesPerHour[e.Timestamp.UTC().Format("2006-01-02 15:00")]++
	return true
}

func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcomes := make(map[string]map[string]int, len(m.outcomes))
	for d, byOutcome := range m.outcomes {
		outcomes[d] = make(map[string]int, len(byOutcome))
		for o, n := range byOutcome {
			outcomes[d][o] = n
		}
	}

	hours := make([]string, 0, len(m.gamesPerHour))
	for h := range m.gamesPerHour {
		hours = append(hours, h)
	}
	sort.Strings(hours)
	busiest := ""
	for _, h := range hours {
		if busiest == "" || m.gamesPerHour[h] > m.gamesPerHour[busiest] {
			busiest = h
		}
	}

	return Summary{
		TotalGames:      m.totalGames,
		Outcomes:        outcomes,
		AverageDuration: mean(m.durations),
		AverageMoves:    mean(m.moveCounts),
		BusiestHour:     busiest,
	}
}

func (m *Metrics) Log(log *zap.SugaredLogger) {
	s := m.Summary()
	log.Infow("analytics summary",
		"totalGames", s.TotalGames,
		"outcomes", s.Outcomes,
		"averageDuration", time.Duration(s.AverageDuration*float64(time.Second)).String(),
		"averageMoves", s.AverageMoves,
		"busiestHour", s.BusiestHour,
	)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
