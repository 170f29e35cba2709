package backoffice

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/gonzofleet/internal/fleetapi"
	"github.com/MarkoPoloResearchLab/gonzofleet/pkg/fleet"
	"go.uber.org/zap"
)

const (
	applicationDetailPathFormat = "/applications/%s"
	displayDateLayout           = "Jan 2, 2006"

	SortByName      = "name"
	SortByEmail     = "email"
	SortBySubmitted = "submitted"
	SortByStatus    = "status"
)

var applicationFilters = []struct {
	status fleet.ApplicationStatus
	label  string
}{
	{status: "", label: "All"},
	{status: fleet.ApplicationPending, label: "Pending"},
	{status: fleet.ApplicationApproved, label: "Approved"},
	{status: fleet.ApplicationDeclined, label: "Declined"},
}

// FilterButton is one status filter with its badge count.
type FilterButton struct {
	Status fleet.ApplicationStatus `json:"status"`
	Label  string                  `json:"label"`
	Count  int                     `json:"count"`
	Active bool                    `json:"active"`
}

// ApplicationRow is one rendered application.
type ApplicationRow struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Email      string                  `json:"email"`
	Phone      string                  `json:"phone"`
	Submitted  string                  `json:"submitted"`
	Status     fleet.ApplicationStatus `json:"status"`
	DetailPath string                  `json:"detail_path"`
}

// ApplicationListState is a point-in-time copy of the list view.
type ApplicationListState struct {
	Filter  fleet.ApplicationStatus `json:"filter"`
	Loading bool                    `json:"loading"`
	Filters []FilterButton          `json:"filters"`
	Rows    []ApplicationRow        `json:"rows"`
}

// ApplicationList lists applications for one status filter.
type ApplicationList struct {
	api    fleetapi.API
	logger *zap.Logger

	mu           sync.Mutex
	filter       fleet.ApplicationStatus
	applications []fleet.Application
	loading      bool
	generation   generation
}

// NewApplicationList returns an empty list with the All filter selected.
func NewApplicationList(api fleetapi.API, options ...Option) (*ApplicationList, error) {
	cfg, err := newViewConfig(api, options)
	if err != nil {
		return nil, err
	}
	return &ApplicationList{api: api, logger: cfg.logger}, nil
}

// Load fetches the applications for the current filter. On failure the
// previously loaded list is kept.
func (list *ApplicationList) Load(ctx context.Context) error {
	list.mu.Lock()
	filter := list.filter
	list.mu.Unlock()
	return list.load(ctx, filter)
}

// SetFilter selects a filter and reloads. The empty status selects All;
// statuses without a filter button are rejected.
func (list *ApplicationList) SetFilter(ctx context.Context, status fleet.ApplicationStatus) error {
	if !isFilterStatus(status) {
		return fmt.Errorf("%w: no filter for status %q", fleet.ErrValidation, status)
	}
	list.mu.Lock()
	list.filter = status
	list.mu.Unlock()
	return list.load(ctx, status)
}

func (list *ApplicationList) load(ctx context.Context, filter fleet.ApplicationStatus) error {
	list.mu.Lock()
	token, err := list.generation.next()
	if err != nil {
		list.mu.Unlock()
		return err
	}
	list.loading = true
	list.mu.Unlock()

	applications, err := list.api.GetApplications(ctx, filter)

	list.mu.Lock()
	defer list.mu.Unlock()
	if !list.generation.accepts(token) {
		list.logger.Debug("discarded stale applications response", zap.String("filter", filter.String()))
		return ErrStaleResponse
	}
	list.loading = false
	if err != nil {
		list.logger.Warn("applications load failed", zap.String("filter", filter.String()), zap.Error(err))
		return err
	}
	list.applications = applications
	return nil
}

// Close drops any response still in flight. Further loads are refused.
func (list *ApplicationList) Close() {
	list.mu.Lock()
	defer list.mu.Unlock()
	list.generation.close()
	list.loading = false
}

// Filter returns the selected filter.
func (list *ApplicationList) Filter() fleet.ApplicationStatus {
	list.mu.Lock()
	defer list.mu.Unlock()
	return list.filter
}

// Loading reports whether a load is in flight.
func (list *ApplicationList) Loading() bool {
	list.mu.Lock()
	defer list.mu.Unlock()
	return list.loading
}

// Applications returns a copy of the loaded applications.
func (list *ApplicationList) Applications() []fleet.Application {
	list.mu.Lock()
	defer list.mu.Unlock()
	return slices.Clone(list.applications)
}

// Counts returns per-status counts over the loaded set.
func (list *ApplicationList) Counts() map[fleet.ApplicationStatus]int {
	list.mu.Lock()
	defer list.mu.Unlock()
	return countByStatus(list.applications)
}

// Filters returns the filter buttons with their badge counts.
func (list *ApplicationList) Filters() []FilterButton {
	list.mu.Lock()
	defer list.mu.Unlock()
	return list.filtersLocked()
}

// Rows renders the loaded applications in fetch order.
func (list *ApplicationList) Rows() []ApplicationRow {
	list.mu.Lock()
	defer list.mu.Unlock()
	return applicationRows(list.applications)
}

// SortedRows renders the loaded applications ordered by column.
func (list *ApplicationList) SortedRows(column string, descending bool) ([]ApplicationRow, error) {
	compare, err := applicationComparator(column)
	if err != nil {
		return nil, err
	}
	list.mu.Lock()
	applications := slices.Clone(list.applications)
	list.mu.Unlock()
	slices.SortStableFunc(applications, func(left, right fleet.Application) int {
		if descending {
			return compare(right, left)
		}
		return compare(left, right)
	})
	return applicationRows(applications), nil
}

// Snapshot returns the full rendered state.
func (list *ApplicationList) Snapshot() ApplicationListState {
	list.mu.Lock()
	defer list.mu.Unlock()
	return ApplicationListState{
		Filter:  list.filter,
		Loading: list.loading,
		Filters: list.filtersLocked(),
		Rows:    applicationRows(list.applications),
	}
}

func (list *ApplicationList) filtersLocked() []FilterButton {
	counts := countByStatus(list.applications)
	buttons := make([]FilterButton, 0, len(applicationFilters))
	for _, filter := range applicationFilters {
		count := counts[filter.status]
		if filter.status == "" {
			count = len(list.applications)
		}
		buttons = append(buttons, FilterButton{
			Status: filter.status,
			Label:  filter.label,
			Count:  count,
			Active: filter.status == list.filter,
		})
	}
	return buttons
}

func isFilterStatus(status fleet.ApplicationStatus) bool {
	for _, filter := range applicationFilters {
		if filter.status == status {
			return true
		}
	}
	return false
}

func countByStatus(applications []fleet.Application) map[fleet.ApplicationStatus]int {
	counts := make(map[fleet.ApplicationStatus]int, len(fleet.ApplicationStatuses()))
	for _, application := range applications {
		counts[application.Status]++
	}
	return counts
}

func applicationRows(applications []fleet.Application) []ApplicationRow {
	rows := make([]ApplicationRow, 0, len(applications))
	for _, application := range applications {
		rows = append(rows, ApplicationRow{
			ID:         application.ID,
			Name:       application.DisplayName(),
			Email:      application.Email(),
			Phone:      application.Phone(),
			Submitted:  application.CreatedAt.Format(displayDateLayout),
			Status:     application.Status,
			DetailPath: ApplicationDetailPath(application.ID),
		})
	}
	return rows
}

// ApplicationDetailPath returns the console path of one application.
func ApplicationDetailPath(applicationID string) string {
	return fmt.Sprintf(applicationDetailPathFormat, applicationID)
}

func applicationComparator(column string) (func(left, right fleet.Application) int, error) {
	switch strings.ToLower(strings.TrimSpace(column)) {
	case SortByName:
		return func(left, right fleet.Application) int {
			return strings.Compare(strings.ToLower(left.DisplayName()), strings.ToLower(right.DisplayName()))
		}, nil
	case SortByEmail:
		return func(left, right fleet.Application) int {
			return strings.Compare(strings.ToLower(left.Email()), strings.ToLower(right.Email()))
		}, nil
	case SortBySubmitted:
		return func(left, right fleet.Application) int {
			return left.CreatedAt.Compare(right.CreatedAt)
		}, nil
	case SortByStatus:
		return func(left, right fleet.Application) int {
			return strings.Compare(left.Status.String(), right.Status.String())
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sort column %q", fleet.ErrValidation, column)
	}
}
