package rides

import (
	"context"

	"github.com/wingz-dispatch/ride-records-api/internal/app/paging"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/riderepo"
)

const (
	OrderingPickupTime           = "pickup_time"
	OrderingPickupTimeDesc       = "-pickup_time"
	OrderingDistanceToPickup     = "distance_to_pickup"
	OrderingDistanceToPickupDesc = "-distance_to_pickup"

	DefaultOrdering = OrderingPickupTimeDesc
)

// resolveOrdering maps the ordering parameter onto a store ordering. Distance ordering
// without a reference point degrades to the default.
func resolveOrdering(ordering string, ref *domain.Coordinate) (riderepo.OrderField, bool) {
	switch ordering {
	case OrderingPickupTime:
		return riderepo.OrderPickupTime, false
	case OrderingPickupTimeDesc:
		return riderepo.OrderPickupTime, true
	case OrderingDistanceToPickup:
		if ref != nil {
			return riderepo.OrderDistanceToPickup, false
		}
	case OrderingDistanceToPickupDesc:
		if ref != nil {
			return riderepo.OrderDistanceToPickup, true
		}
	}
	return riderepo.OrderPickupTime, true
}

// ListRides filters, orders and paginates rides, then attaches each ride's recent events and
// optional distance. One page costs a count, a joined ride query and one bulk event lookup
// regardless of page size.
func (s *Service) ListRides(ctx context.Context, in ListRidesInput, page paging.Request) (paging.Page[domain.RideDetails], error) {
	page = s.Limits.Normalize(page)
	filter := riderepo.Filter{Status: in.Status, RiderEmail: in.RiderEmail}

	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return paging.Page[domain.RideDetails]{}, err
	}
	if !page.Exists(count) {
		return paging.Page[domain.RideDetails]{}, errPageNotFound()
	}

	orderBy, desc := resolveOrdering(in.Ordering, in.Reference)
	rows, err := s.repo.List(ctx, riderepo.Query{
		Filter:     filter,
		OrderBy:    orderBy,
		Descending: desc,
		Reference:  in.Reference,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return paging.Page[domain.RideDetails]{}, err
	}

	ids := make([]domain.RideID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Ride.ID)
	}
	now := s.clk.Now()
	events, err := s.repo.ListEventsInWindow(ctx, ids, now.Add(-s.window()), now)
	if err != nil {
		return paging.Page[domain.RideDetails]{}, err
	}

	items := make([]domain.RideDetails, 0, len(rows))
	for _, row := range rows {
		items = append(items, buildDetails(row, events[row.Ride.ID], in.Reference))
	}
	return paging.Page[domain.RideDetails]{
		Count:    count,
		Page:     page.Page,
		PageSize: page.PageSize,
		Items:    items,
	}, nil
}
