// Package calendar implements the user-facing calendar operations: uploads,
// URL imports with duplicate merging, recommendations and accepting a
// recommendation into the calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"uqconnect/internal/ics"
	appLog "uqconnect/internal/log"
	"uqconnect/internal/metrics"
	"uqconnect/internal/model"
	"uqconnect/internal/recommend"
	"uqconnect/internal/schedule"
	"uqconnect/internal/store"
)

var (
	ErrInvalidURL        = errors.New("please provide a valid calendar URL")
	ErrFetch             = errors.New("failed to fetch calendar")
	ErrNotCalendar       = errors.New("document is not a valid .ics calendar file")
	ErrNoEvents          = errors.New("no events found in the calendar file")
	ErrEventNotFound     = errors.New("event not found")
	ErrCalendarNotFound  = errors.New("user calendar not found")
	ErrAlreadyInCalendar = errors.New("event already in calendar")
)

// Store is the persistence the service needs.
type Store interface {
	Get(ctx context.Context, userID string) (model.Calendar, error)
	Update(ctx context.Context, userID string, fn func(*model.Calendar) error) (model.Calendar, error)
	List(ctx context.Context) ([]model.Calendar, error)
}

// Catalogue provides the current campus events.
type Catalogue interface {
	Events() []model.CatalogueEvent
	Find(id string) (model.CatalogueEvent, bool)
}

// Fetcher returns the raw body of a calendar URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (ics.FetchResult, error)
}

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	Window             schedule.Window
	MaxRecommendations int
	// Now is the clock used for the free-slot scan and timestamps.
	Now func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	store     Store
	catalogue Catalogue
	fetcher   Fetcher
	window    schedule.Window
	max       int
	now       func() time.Time
}

func New(st Store, cat Catalogue, f Fetcher, opts Options) *Service {
	if opts.Window.Days <= 0 {
		opts.Window = schedule.DefaultWindow()
	}
	if opts.MaxRecommendations <= 0 {
		opts.MaxRecommendations = recommend.DefaultMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     st,
		catalogue: cat,
		fetcher:   f,
		window:    opts.Window,
		max:       opts.MaxRecommendations,
		now:       opts.Now,
	}
}

// UploadResult is returned by Upload.
type UploadResult struct {
	Events      []model.CalendarEvent `json:"events"`
	EventsCount int                   `json:"eventsCount"`
}

// Upload replaces the user's events with the events of an uploaded ICS
// document. A document without events is accepted and clears the calendar.
func (s *Service) Upload(ctx context.Context, userID, text string) (UploadResult, error) {
	if !ics.HasCalendarMarker(text) {
		metrics.Imports.WithLabelValues("upload", "rejected").Inc()
		return UploadResult{}, ErrNotCalendar
	}

	events := tag(ics.ParseCalendar(text), model.SourceUpload)
	_, err := s.store.Update(ctx, userID, func(cal *model.Calendar) error {
		cal.Events = events
		cal.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		metrics.Imports.WithLabelValues("upload", "error").Inc()
		return UploadResult{}, fmt.Errorf("save calendar: %w", err)
	}

	metrics.Imports.WithLabelValues("upload", "ok").Inc()
	appLog.Info("calendar uploaded", "user", userID, "event_count", len(events))
	return UploadResult{Events: events, EventsCount: len(events)}, nil
}

// ImportResult is returned by Import.
type ImportResult struct {
	Added        int      `json:"eventsCount"`
	Total        int      `json:"totalEvents"`
	Calendar     ics.Meta `json:"calendar"`
	FromCache    bool     `json:"fromCache"`
	Subscription string   `json:"subscription"`
	Message      string   `json:"message"`
}

// Import fetches an external calendar URL and merges its events into the
// user's calendar, skipping events already present with the same title and
// start. The URL is remembered as a subscription for periodic refresh.
func (s *Service) Import(ctx context.Context, userID, rawURL string) (ImportResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !validURL(rawURL) {
		metrics.Imports.WithLabelValues("import", "rejected").Inc()
		return ImportResult{}, ErrInvalidURL
	}
	res, err := s.importURL(ctx, userID, rawURL)
	if err != nil {
		metrics.Imports.WithLabelValues("import", "error").Inc()
		return ImportResult{}, err
	}
	metrics.Imports.WithLabelValues("import", "ok").Inc()
	return res, nil
}

func (s *Service) importURL(ctx context.Context, userID, rawURL string) (ImportResult, error) {
	appLog.Info("importing external calendar", "user", userID, "url", appLog.RedactURL(rawURL))

	fetched, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	text := string(fetched.Body)
	if !ics.HasCalendarMarker(text) {
		return ImportResult{}, ErrNotCalendar
	}

	events := tag(ics.ParseCalendar(text), model.SourceImport)
	if len(events) == 0 {
		return ImportResult{}, ErrNoEvents
	}

	meta, err := ics.Describe(text)
	if err != nil {
		appLog.Debug("ics describe failed; continuing without metadata", "url", appLog.RedactURL(rawURL), "reason", err.Error())
		meta = ics.Meta{EventCount: len(events)}
	}

	now := s.now()
	added := 0
	_, err = s.store.Update(ctx, userID, func(cal *model.Calendar) error {
		added = 0
		for _, ev := range events {
			if containsEvent(cal.Events, ev) {
				continue
			}
			cal.Events = append(cal.Events, ev)
			added++
		}
		cal.Subscriptions = subscribe(cal.Subscriptions, rawURL, meta.Name, now)
		cal.LastUpdated = now
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("save calendar: %w", err)
	}

	res := ImportResult{
		Added:        added,
		Total:        len(events),
		Calendar:     meta,
		FromCache:    fetched.FromCache,
		Subscription: rawURL,
	}
	if added == len(events) {
		res.Message = "Calendar imported successfully"
	} else {
		res.Message = fmt.Sprintf("Imported %d new events (%d duplicates skipped)", added, len(events)-added)
	}
	appLog.Info("calendar imported", "user", userID, "added", added, "total", len(events), "from_cache", fetched.FromCache)
	return res, nil
}

// Calendar returns the stored calendar of userID; a user without one gets
// an empty calendar.
func (s *Service) Calendar(ctx context.Context, userID string) (model.Calendar, error) {
	cal, err := s.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Calendar{UserID: userID, Events: []model.CalendarEvent{}}, nil
	}
	if err != nil {
		return model.Calendar{}, err
	}
	if cal.Events == nil {
		cal.Events = []model.CalendarEvent{}
	}
	return cal, nil
}

// Recommendations ranks the catalogue against the user's calendar. Users
// without a calendar or without events get no recommendations.
func (s *Service) Recommendations(ctx context.Context, userID string) ([]model.Recommendation, error) {
	cal, err := s.Calendar(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cal.Events) == 0 {
		appLog.Debug("no calendar events; returning empty recommendations", "user", userID)
		return []model.Recommendation{}, nil
	}

	started := time.Now()
	opts := recommend.Options{Today: s.now(), Window: s.window, Max: s.max}
	recs := recommend.Recommend(cal.Events, s.catalogue.Events(), opts)
	metrics.RankingDuration.Observe(float64(time.Since(started).Microseconds()) / 1000)

	for _, r := range recs {
		metrics.Recommendations.WithLabelValues(string(r.Match)).Inc()
	}
	appLog.Info("recommendations generated", "user", userID, "calendar_events", len(cal.Events), "count", len(recs))
	return recs, nil
}

// Patterns summarizes the user's calendar.
func (s *Service) Patterns(ctx context.Context, userID string) (recommend.Patterns, error) {
	cal, err := s.Calendar(ctx, userID)
	if err != nil {
		return recommend.Patterns{}, err
	}
	return recommend.Summarize(cal.Events), nil
}

// Accept adds a catalogue event to the user's calendar.
func (s *Service) Accept(ctx context.Context, userID, eventID string) (model.CalendarEvent, error) {
	ev, ok := s.catalogue.Find(eventID)
	if !ok {
		return model.CalendarEvent{}, ErrEventNotFound
	}
	if _, err := s.store.Get(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.CalendarEvent{}, ErrCalendarNotFound
		}
		return model.CalendarEvent{}, err
	}

	start, end, err := ev.Interval()
	if err != nil {
		return model.CalendarEvent{}, err
	}
	added := model.CalendarEvent{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       model.At(start),
		End:         model.At(end),
		Source:      model.SourceRecommendation,
		Category:    ev.Category,
		Type:        ev.Type,
	}

	_, err = s.store.Update(ctx, userID, func(cal *model.Calendar) error {
		for _, existing := range cal.Events {
			if existing.ID == eventID {
				return ErrAlreadyInCalendar
			}
		}
		cal.Events = append(cal.Events, added)
		cal.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		return model.CalendarEvent{}, err
	}

	appLog.Info("recommendation accepted", "user", userID, "event_id", eventID)
	return added, nil
}

// RefreshReport summarizes one RefreshAll pass.
type RefreshReport struct {
	Subscriptions int
	Added         int
	Failed        int
}

// RefreshAll re-imports every stored subscription. Failures of individual
// subscriptions are logged and counted; only a failure to list calendars is
// returned.
func (s *Service) RefreshAll(ctx context.Context) (RefreshReport, error) {
	cals, err := s.store.List(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("list calendars: %w", err)
	}

	var report RefreshReport
	for _, cal := range cals {
		for _, sub := range cal.Subscriptions {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.Subscriptions++
			res, err := s.importURL(ctx, cal.UserID, sub.URL)
			if err != nil {
				report.Failed++
				appLog.Error("subscription refresh failed", err, "user", cal.UserID, "url", appLog.RedactURL(sub.URL))
				continue
			}
			report.Added += res.Added
		}
	}
	return report, nil
}

func tag(events []model.CalendarEvent, src model.Source) []model.CalendarEvent {
	for i := range events {
		events[i].Source = src
	}
	return events
}

func containsEvent(events []model.CalendarEvent, ev model.CalendarEvent) bool {
	for _, existing := range events {
		if existing.Title == ev.Title && existing.Start.String() == ev.Start.String() {
			return true
		}
	}
	return false
}

func subscribe(subs []model.Subscription, rawURL, name string, now time.Time) []model.Subscription {
	for i := range subs {
		if subs[i].URL == rawURL {
			subs[i].LastFetched = now
			if name != "" {
				subs[i].Name = name
			}
			return subs
		}
	}
	return append(subs, model.Subscription{URL: rawURL, Name: name, AddedAt: now, LastFetched: now})
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
