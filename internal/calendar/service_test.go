package calendar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uqconnect/internal/ics"
	"uqconnect/internal/model"
	"uqconnect/internal/store"
)

const timetable = "BEGIN:VCALENDAR\r\n" +
	"PRODID:-//UQ//Timetable//EN\r\n" +
	"X-WR-CALNAME:Semester 1\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"SUMMARY:COMP3506\\, Lecture\r\n" +
	"DTSTART:20250303T090000\r\n" +
	"DTEND:20250303T110000\r\n" +
	"LOCATION:78-420 - General Purpose South\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"SUMMARY:CSSE2310\\, Tutorial\r\n" +
	"DTSTART:20250304T130000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

var now = time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (ics.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return ics.FetchResult{}, f.err
	}
	body, ok := f.bodies[url]
	if !ok {
		return ics.FetchResult{}, ics.ErrUpstreamStatus
	}
	return ics.FetchResult{URL: url, Body: []byte(body)}, nil
}

type fakeCatalogue []model.CatalogueEvent

func (c fakeCatalogue) Events() []model.CatalogueEvent { return c }

func (c fakeCatalogue) Find(id string) (model.CatalogueEvent, bool) {
	for _, ev := range c {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.CatalogueEvent{}, false
}

var catalogueFixture = fakeCatalogue{
	{ID: "1", Title: "Careers Drop-in", Date: "2025-03-03", Time: "14:00", Duration: 60, Location: "UQ Centre", Category: model.CategoryCareer, Capacity: 20},
	{ID: "2", Title: "Python Meetup", Date: "2025-04-20", Time: "18:00", Duration: 90, Location: "78-420 Level 4", Category: model.CategorySocial, Capacity: 40, Registered: 10},
}

func newTestService(t *testing.T, f *fakeFetcher) (*Service, *store.Store) {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	if f == nil {
		f = &fakeFetcher{}
	}
	svc := New(st, catalogueFixture, f, Options{Now: func() time.Time { return now }})
	return svc, st
}

func TestUpload_ReplacesEvents(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.Upload(ctx, "u1", timetable)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EventsCount)
	assert.Equal(t, model.SourceUpload, res.Events[0].Source)

	single := strings.Replace(timetable, "SUMMARY:CSSE2310\\, Tutorial\r\n", "", 1)
	res, err = svc.Upload(ctx, "u1", single)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsCount)

	cal, err := svc.Calendar(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cal.Events, 1)
	assert.Equal(t, "COMP3506, Lecture", cal.Events[0].Title)
	assert.True(t, now.Equal(cal.LastUpdated))
}

func TestUpload_RejectsNonCalendar(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Upload(context.Background(), "u1", "<html></html>")
	assert.ErrorIs(t, err, ErrNotCalendar)
}

func TestUpload_EmptyCalendarClearsEvents(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Upload(ctx, "u1", timetable)
	require.NoError(t, err)

	res, err := svc.Upload(ctx, "u1", "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	require.NoError(t, err)
	assert.Zero(t, res.EventsCount)
	assert.NotNil(t, res.Events)
}

func TestImport_MergesAndSkipsDuplicates(t *testing.T) {
	const url = "https://timetable.example/u1.ics"
	f := &fakeFetcher{bodies: map[string]string{url: timetable}}
	svc, _ := newTestService(t, f)
	ctx := context.Background()

	res, err := svc.Import(ctx, "u1", "  "+url+" ")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, "Calendar imported successfully", res.Message)
	assert.Equal(t, "Semester 1", res.Calendar.Name)
	assert.Equal(t, url, res.Subscription)

	res, err = svc.Import(ctx, "u1", url)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, "Imported 0 new events (2 duplicates skipped)", res.Message)

	cal, err := svc.Calendar(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cal.Events, 2)
	require.Len(t, cal.Subscriptions, 1)
	assert.Equal(t, "Semester 1", cal.Subscriptions[0].Name)
	assert.Equal(t, model.SourceImport, cal.Events[0].Source)
}

func TestImport_Errors(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{
		"https://x.example/page":  "<html>login</html>",
		"https://x.example/empty": "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
	}}
	svc, _ := newTestService(t, f)
	ctx := context.Background()

	_, err := svc.Import(ctx, "u1", "ftp://x.example/cal.ics")
	assert.ErrorIs(t, err, ErrInvalidURL)
	_, err = svc.Import(ctx, "u1", "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Zero(t, f.calls, "invalid URLs are never fetched")

	_, err = svc.Import(ctx, "u1", "https://x.example/page")
	assert.ErrorIs(t, err, ErrNotCalendar)

	_, err = svc.Import(ctx, "u1", "https://x.example/empty")
	assert.ErrorIs(t, err, ErrNoEvents)

	_, err = svc.Import(ctx, "u1", "https://x.example/missing")
	assert.ErrorIs(t, err, ErrFetch)
	assert.ErrorIs(t, err, ics.ErrUpstreamStatus)
}

func TestCalendar_Missing(t *testing.T) {
	svc, _ := newTestService(t, nil)
	cal, err := svc.Calendar(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", cal.UserID)
	assert.NotNil(t, cal.Events)
	assert.Empty(t, cal.Events)
}

func TestRecommendations(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	recs, err := svc.Recommendations(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, recs, "no calendar means no recommendations")

	_, err = svc.Upload(ctx, "u1", timetable)
	require.NoError(t, err)

	recs, err = svc.Recommendations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, model.MatchTime, recs[0].Match)
	assert.Equal(t, "2", recs[1].ID)
	assert.Equal(t, model.MatchGeneral, recs[1].Match)
	// Social baseline, location and keyword hits.
	assert.InDelta(t, 0.65, recs[1].Confidence, 1e-9)
}

func TestPatterns(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Upload(ctx, "u1", timetable)
	require.NoError(t, err)

	p, err := svc.Patterns(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.Subjects, 2)
	assert.Len(t, p.Weekdays, 2)
}

func TestAccept(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Accept(ctx, "u1", "1")
	assert.ErrorIs(t, err, ErrCalendarNotFound)

	_, err = svc.Upload(ctx, "u1", timetable)
	require.NoError(t, err)

	_, err = svc.Accept(ctx, "u1", "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)

	ev, err := svc.Accept(ctx, "u1", "1")
	require.NoError(t, err)
	assert.Equal(t, model.SourceRecommendation, ev.Source)
	assert.Equal(t, "2025-03-03T14:00:00", ev.Start.String())
	assert.Equal(t, "2025-03-03T15:00:00", ev.End.String())

	_, err = svc.Accept(ctx, "u1", "1")
	assert.ErrorIs(t, err, ErrAlreadyInCalendar)

	recs, err := svc.Recommendations(ctx, "u1")
	require.NoError(t, err)
	for _, r := range recs {
		assert.NotEqual(t, "1", r.ID, "accepted events are not recommended again")
	}
}

func TestRefreshAll(t *testing.T) {
	const good = "https://timetable.example/good.ics"
	const bad = "https://timetable.example/bad.ics"
	f := &fakeFetcher{bodies: map[string]string{good: timetable, bad: timetable}}
	svc, st := newTestService(t, f)
	ctx := context.Background()

	_, err := svc.Import(ctx, "u1", good)
	require.NoError(t, err)
	_, err = svc.Import(ctx, "u2", bad)
	require.NoError(t, err)

	// Remove one event so the refresh has something to add back.
	_, err = st.Update(ctx, "u1", func(c *model.Calendar) error {
		c.Events = c.Events[:1]
		return nil
	})
	require.NoError(t, err)
	delete(f.bodies, bad)

	report, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshReport{Subscriptions: 2, Added: 1, Failed: 1}, report)

	cal, err := svc.Calendar(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cal.Events, 2)
}

func TestRefreshAll_Cancelled(t *testing.T) {
	const url = "https://timetable.example/a.ics"
	f := &fakeFetcher{bodies: map[string]string{url: timetable}}
	svc, _ := newTestService(t, f)
	_, err := svc.Import(context.Background(), "u1", url)
	require.NoError(t, err)

	f.err = errors.New("should not be called")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.RefreshAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
