// Package adminstore is the resource-level cache of the admin dashboard.
//
// Every accessor reads through the shared SWR cache under its family, so a
// dashboard that mounts the same list twice triggers one backend call, a
// stale list is shown at once while it refreshes, and a failing list is not
// hammered during its cooldown. Mutations go to the backend and then hand
// the mutated resource to the write policy.
package adminstore

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cache "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/internal/adminapi"
	"github.com/krisalay/clinic-swr-cache/key"
	"github.com/krisalay/clinic-swr-cache/writepolicy"
)

// Resource families.
const (
	FamilyStats        = "stats"
	FamilyDoctors      = "doctors"
	FamilyUsers        = "users"
	FamilyLabBookings  = "labBookings"
	FamilyLabReports   = "labReports"
	FamilyMedicines    = "medicines"
	FamilyOrders       = "orders"
	FamilyArticles     = "articles"
	FamilyCompensation = "compensation"
	FamilyReviews      = "reviews"
)

// fetcher loads one family as an untyped Result.
type fetcher func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result

// Store is the typed view over the cache and the backend client.
type Store struct {
	cache    *cache.SWRCache
	api      *adminapi.Client
	writes   writepolicy.WritePolicy
	logger   *zap.Logger
	fetchers map[string]fetcher
}

// New creates a Store. writes may be nil, in which case mutations do not
// invalidate anything.
func New(c *cache.SWRCache, api *adminapi.Client, writes writepolicy.WritePolicy, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{cache: c, api: api, writes: writes, logger: logger}
	s.fetchers = map[string]fetcher{
		FamilyStats: func(ctx context.Context, _ adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Stats(ctx, opts...).Untyped()
		},
		FamilyDoctors: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Doctors(ctx, q, opts...).Untyped()
		},
		FamilyUsers: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Users(ctx, q, opts...).Untyped()
		},
		FamilyLabBookings: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.LabBookings(ctx, q, opts...).Untyped()
		},
		FamilyLabReports: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.LabReports(ctx, q, opts...).Untyped()
		},
		FamilyMedicines: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Medicines(ctx, q, opts...).Untyped()
		},
		FamilyOrders: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Orders(ctx, q, opts...).Untyped()
		},
		FamilyArticles: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Articles(ctx, q, opts...).Untyped()
		},
		FamilyCompensation: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Compensation(ctx, q, opts...).Untyped()
		},
		FamilyReviews: func(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.Result {
			return s.Reviews(ctx, q, opts...).Untyped()
		},
	}
	return s
}

// Families lists the resource families the store serves, sorted.
func (s *Store) Families() []string {
	out := make([]string, 0, len(s.fetchers))
	for f := range s.fetchers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Fetch reads any family by name.
func (s *Store) Fetch(ctx context.Context, family string, q adminapi.ListQuery, opts ...cache.Option) (cache.Result, error) {
	f, ok := s.fetchers[family]
	if !ok {
		return cache.Result{}, fmt.Errorf("unknown resource family %q", family)
	}
	return f(ctx, q, opts...), nil
}

// KeyFor is the cache key of a family view.
func KeyFor(family string, q adminapi.ListQuery) string {
	if family == FamilyStats {
		return key.New(family, nil)
	}
	return key.New(family, q.Params())
}

func list[T any](
	ctx context.Context,
	s *Store,
	family string,
	q adminapi.ListQuery,
	load func(context.Context, adminapi.ListQuery) (*adminapi.Page[T], error),
	opts []cache.Option,
) cache.TypedResult[*adminapi.Page[T]] {
	return cache.GetAs(ctx, s.cache, KeyFor(family, q), func(ctx context.Context) (*adminapi.Page[T], error) {
		return load(ctx, q)
	}, opts...)
}

//
// ================= READS =================
//

func (s *Store) Stats(ctx context.Context, opts ...cache.Option) cache.TypedResult[*adminapi.Stats] {
	return cache.GetAs(ctx, s.cache, KeyFor(FamilyStats, adminapi.ListQuery{}), s.api.Stats, opts...)
}

func (s *Store) Doctors(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.Doctor]] {
	return list(ctx, s, FamilyDoctors, q, s.api.Doctors, opts)
}

func (s *Store) Users(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.User]] {
	return list(ctx, s, FamilyUsers, q, s.api.Users, opts)
}

func (s *Store) LabBookings(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.LabBooking]] {
	return list(ctx, s, FamilyLabBookings, q, s.api.LabBookings, opts)
}

func (s *Store) LabReports(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.LabReport]] {
	return list(ctx, s, FamilyLabReports, q, s.api.LabReports, opts)
}

func (s *Store) Medicines(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.Medicine]] {
	return list(ctx, s, FamilyMedicines, q, s.api.Medicines, opts)
}

func (s *Store) Orders(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.Order]] {
	return list(ctx, s, FamilyOrders, q, s.api.Orders, opts)
}

func (s *Store) Articles(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.Article]] {
	return list(ctx, s, FamilyArticles, q, s.api.Articles, opts)
}

func (s *Store) Compensation(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.Compensation]] {
	return list(ctx, s, FamilyCompensation, q, s.api.Compensation, opts)
}

func (s *Store) Reviews(ctx context.Context, q adminapi.ListQuery, opts ...cache.Option) cache.TypedResult[*adminapi.Page[adminapi.Review]] {
	return list(ctx, s, FamilyReviews, q, s.api.Reviews, opts)
}

/*
Warm loads the first page of every family concurrently, the way the
dashboard does on first paint. It returns the first failure; families that
loaded are cached regardless.
*/
func (s *Store) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, family := range s.Families() {
		g.Go(func() error {
			res, err := s.Fetch(ctx, family, adminapi.ListQuery{})
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("warm %s: %w", family, res.Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("cache warm-up incomplete", zap.Error(err))
		return err
	}
	s.logger.Info("cache warmed", zap.Int("families", len(s.fetchers)))
	return nil
}

//
// ================= WRITES =================
//

func (s *Store) written(ctx context.Context, resource string) {
	if s.writes != nil {
		s.writes.OnWrite(ctx, resource)
	}
}

func (s *Store) CreateDoctor(ctx context.Context, in adminapi.DoctorInput) (*adminapi.Doctor, error) {
	d, err := s.api.CreateDoctor(ctx, in)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyDoctors)
	return d, nil
}

func (s *Store) UpdateDoctor(ctx context.Context, id string, in adminapi.DoctorInput) (*adminapi.Doctor, error) {
	d, err := s.api.UpdateDoctor(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyDoctors)
	return d, nil
}

func (s *Store) DeleteDoctor(ctx context.Context, id string) error {
	if err := s.api.DeleteDoctor(ctx, id); err != nil {
		return err
	}
	s.written(ctx, FamilyDoctors)
	return nil
}

func (s *Store) CreateMedicine(ctx context.Context, in adminapi.MedicineInput) (*adminapi.Medicine, error) {
	m, err := s.api.CreateMedicine(ctx, in)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyMedicines)
	return m, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, id string, in adminapi.MedicineInput) (*adminapi.Medicine, error) {
	m, err := s.api.UpdateMedicine(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyMedicines)
	return m, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) (*adminapi.Order, error) {
	o, err := s.api.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyOrders)
	return o, nil
}

func (s *Store) UploadLabReport(ctx context.Context, bookingID string, up adminapi.LabReportUpload) (*adminapi.LabReport, error) {
	r, err := s.api.UploadLabReport(ctx, bookingID, up)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyLabReports)
	return r, nil
}

func (s *Store) CreateArticle(ctx context.Context, in adminapi.ArticleInput) (*adminapi.Article, error) {
	a, err := s.api.CreateArticle(ctx, in)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyArticles)
	return a, nil
}

func (s *Store) PayCompensation(ctx context.Context, p adminapi.Payout) (*adminapi.Compensation, error) {
	c, err := s.api.PayCompensation(ctx, p)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyCompensation)
	return c, nil
}

func (s *Store) SubmitReview(ctx context.Context, in adminapi.ReviewInput) (*adminapi.Review, error) {
	r, err := s.api.SubmitReview(ctx, in)
	if err != nil {
		return nil, err
	}
	s.written(ctx, FamilyReviews)
	return r, nil
}
