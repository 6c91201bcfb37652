package attendance

import (
	"context"
	"math"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
)

type (
	// AggregatorInterface answers read-only statistics queries over the
	// attendance log. It performs no authorization: callers are responsible
	// for restricting the filters a principal may request.
	AggregatorInterface interface {
		Records(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error)
		ComputeRate(ctx context.Context, filter QueryFilter) (Stats, error)
		ComputeRateByClass(ctx context.Context, studentID string) ([]ClassStats, error)
	}

	Aggregator struct {
		repo Repository
	}
)

var _ AggregatorInterface = (*Aggregator)(nil)

func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Records lists raw records matching the filter, newest session first unless
// an ordering is given.
func (agg *Aggregator) Records(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Record, error) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "session_date"}, {Field: "created_at"}}
	}
	return agg.repo.FilterRecords(ctx, filter, ordering)
}

// ComputeRate aggregates all records matching the filter into status counts
// and the weighted attendance rate. Matching no records is not an error: the
// counts are zero and the rate is null.
func (agg *Aggregator) ComputeRate(ctx context.Context, filter QueryFilter) (Stats, error) {
	counts, err := agg.repo.CountByStatus(ctx, filter)
	if err != nil {
		return Stats{}, err
	}
	return newStats(counts), nil
}

// ComputeRateByClass aggregates per class over every class the student is
// enrolled in, ordered by class name; classes without records report zero
// counts and a null rate.
func (agg *Aggregator) ComputeRateByClass(ctx context.Context, studentID string) ([]ClassStats, error) {
	rows, err := agg.repo.CountByStatusPerClass(ctx, studentID)
	if err != nil {
		return nil, err
	}
	stats := make([]ClassStats, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, ClassStats{
			ClassID:   row.ClassID,
			ClassName: row.ClassName,
			Stats:     newStats(row.StatusCounts),
		})
	}
	return stats, nil
}

// newStats derives the weighted rate: (present + 0.75*late) / total * 100,
// rounded half-up to 1 decimal. Excused records weigh 0 but stay in the
// denominator, so they lower the rate like plain absences.
func newStats(c StatusCounts) Stats {
	s := Stats{
		TotalRecords: c.Total,
		PresentCount: c.Present,
		LateCount:    c.Late,
		AbsentCount:  c.Absent,
		ExcusedCount: c.Excused,
	}
	if c.Total > 0 {
		weighted := float64(c.Present)*statusWeights[StatusPresent] + float64(c.Late)*statusWeights[StatusLate]
		s.AttendanceRate = null.Float64From(round1(weighted / float64(c.Total) * 100))
	}
	return s
}

// round1 rounds half-up to one decimal place.
func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
