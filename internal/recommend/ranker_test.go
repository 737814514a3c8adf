package recommend

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uqconnect/internal/model"
	"uqconnect/internal/schedule"
)

var today = time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

func day(offset int) string {
	return today.AddDate(0, 0, offset).Format("2006-01-02")
}

func lecture() model.CalendarEvent {
	return model.CalendarEvent{
		Title:    "COMP3506, Lecture 1",
		Location: "78-420 - General Purpose South",
		Start:    model.At(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)),
		End:      model.At(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)),
	}
}

func campusEvent(id string, offset int, clock string, minutes int, category model.Category) model.CatalogueEvent {
	return model.CatalogueEvent{
		ID:       id,
		Title:    "Event " + id,
		Date:     day(offset),
		Time:     clock,
		Duration: minutes,
		Location: "Great Court",
		Category: category,
		Capacity: 100,
	}
}

func TestRecommend_TimeFit(t *testing.T) {
	catalogue := []model.CatalogueEvent{campusEvent("a", 0, "14:00", 60, model.CategorySocial)}

	recs := Recommend([]model.CalendarEvent{lecture()}, catalogue, DefaultOptions(today))
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "a", rec.ID)
	assert.Equal(t, model.MatchTime, rec.Match)
	assert.GreaterOrEqual(t, rec.Confidence, 1.5)
	assert.InDelta(t, 1.5, rec.Confidence, 1e-9)
	assert.Equal(t, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), rec.RecommendedFor.Start)
	assert.Equal(t, time.Date(2025, 3, 3, 21, 0, 0, 0, time.UTC), rec.RecommendedFor.End)
}

func TestRecommend_ExcludesEventAlreadyInCalendar(t *testing.T) {
	ev := campusEvent("a", 0, "14:00", 60, model.CategoryAcademic)
	accepted := model.CalendarEvent{
		ID:    ev.ID,
		Title: ev.Title,
		Start: model.At(time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)),
		End:   model.At(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)),
	}

	recs := Recommend([]model.CalendarEvent{lecture(), accepted}, []model.CatalogueEvent{ev}, DefaultOptions(today))
	assert.Empty(t, recs)
	assert.NotNil(t, recs)
}

func TestRecommend_SameTitleDifferentStartStillRecommended(t *testing.T) {
	ev := campusEvent("a", 1, "14:00", 60, model.CategorySocial)
	earlier := model.CalendarEvent{
		Title: ev.Title,
		Start: model.At(time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)),
		End:   model.At(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)),
	}

	recs := Recommend([]model.CalendarEvent{earlier}, []model.CatalogueEvent{ev}, DefaultOptions(today))
	require.Len(t, recs, 1)
	assert.Equal(t, model.MatchTime, recs[0].Match)
}

func TestRecommend_AtMostMaxAndUnique(t *testing.T) {
	var catalogue []model.CatalogueEvent
	for i := 0; i < 12; i++ {
		catalogue = append(catalogue, campusEvent(fmt.Sprint(i), i%7, "15:00", 30, model.CategoryWorkshop))
	}

	recs := Recommend([]model.CalendarEvent{lecture()}, catalogue, DefaultOptions(today))
	require.Len(t, recs, DefaultMax)

	seen := map[string]bool{}
	for _, r := range recs {
		assert.False(t, seen[r.ID], "duplicate recommendation %s", r.ID)
		seen[r.ID] = true
	}
}

func TestRecommend_TimeMatchesOutrankGeneral(t *testing.T) {
	catalogue := []model.CatalogueEvent{
		campusEvent("far-academic", 30, "10:00", 60, model.CategoryAcademic),
		campusEvent("fit", 2, "11:00", 60, model.CategorySocial),
		campusEvent("far-career", 40, "10:00", 60, model.CategoryCareer),
	}
	catalogue[0].Title = "Python Programming Bootcamp"

	recs := Recommend([]model.CalendarEvent{lecture()}, catalogue, DefaultOptions(today))
	require.Len(t, recs, 3)

	assert.Equal(t, "fit", recs[0].ID)
	assert.Equal(t, model.MatchTime, recs[0].Match)
	for _, r := range recs[1:] {
		assert.Equal(t, model.MatchGeneral, r.Match)
		assert.Less(t, r.Confidence, recs[0].Confidence)
	}
	assert.Equal(t, "far-academic", recs[1].ID)
	assert.InDelta(t, 0.75, recs[1].Confidence, 1e-9)

	start, end, err := catalogue[0].Interval()
	require.NoError(t, err)
	assert.Equal(t, model.FreeSlot{Start: start, End: end, Duration: 60}, recs[1].RecommendedFor)
}

func TestRecommend_TiesKeepSelectionOrder(t *testing.T) {
	catalogue := []model.CatalogueEvent{
		campusEvent("first", 40, "10:00", 60, model.CategorySocial),
		campusEvent("second", 41, "10:00", 60, model.CategorySocial),
	}

	recs := Recommend([]model.CalendarEvent{lecture()}, catalogue, DefaultOptions(today))
	require.Len(t, recs, 2)
	assert.Equal(t, "first", recs[0].ID)
	assert.Equal(t, "second", recs[1].ID)
}

func TestRecommend_Idempotent(t *testing.T) {
	catalogue := []model.CatalogueEvent{
		campusEvent("1", 0, "12:00", 60, model.CategoryCareer),
		campusEvent("2", 3, "16:00", 120, model.CategoryAcademic),
		campusEvent("3", 20, "16:00", 120, model.CategoryWellness),
	}
	calendar := []model.CalendarEvent{lecture()}

	first := Recommend(calendar, catalogue, DefaultOptions(today))
	second := Recommend(calendar, catalogue, DefaultOptions(today))
	assert.Equal(t, first, second)
}

func TestRecommend_DoesNotMutateInputs(t *testing.T) {
	catalogue := []model.CatalogueEvent{
		campusEvent("1", 0, "12:00", 60, model.CategoryCareer),
		campusEvent("2", 25, "12:00", 60, model.CategoryCareer),
	}
	calendar := []model.CalendarEvent{lecture()}
	catBefore := append([]model.CatalogueEvent(nil), catalogue...)
	calBefore := append([]model.CalendarEvent(nil), calendar...)

	Recommend(calendar, catalogue, DefaultOptions(today))
	assert.Equal(t, catBefore, catalogue)
	assert.Equal(t, calBefore, calendar)
}

func TestRecommend_ZeroCapacity(t *testing.T) {
	ev := campusEvent("full", 0, "11:00", 600, model.CategorySocial)
	ev.Capacity = 0
	ev.Registered = 5

	recs := Recommend([]model.CalendarEvent{lecture()}, []model.CatalogueEvent{ev}, DefaultOptions(today))
	require.Len(t, recs, 1)
	// 600 of a 660 minute slot is a tight fit; registration adds nothing.
	assert.InDelta(t, 1.7, recs[0].Confidence, 1e-9)
}

func TestRecommend_SkipsUnparseableCatalogueEntries(t *testing.T) {
	bad := campusEvent("bad", 0, "noon", 60, model.CategoryAcademic)
	good := campusEvent("good", 30, "10:00", 60, model.CategorySocial)

	recs := Recommend([]model.CalendarEvent{lecture()}, []model.CatalogueEvent{bad, good}, DefaultOptions(today))
	require.Len(t, recs, 1)
	assert.Equal(t, "good", recs[0].ID)
}

func TestRank_CustomLimit(t *testing.T) {
	var catalogue []model.CatalogueEvent
	for i := 0; i < 4; i++ {
		catalogue = append(catalogue, campusEvent(fmt.Sprint(i), 60+i, "10:00", 60, model.CategorySocial))
	}
	slots := schedule.FindFreeSlots(nil, today, schedule.DefaultWindow())

	recs := Rank(nil, catalogue, slots, 2)
	assert.Len(t, recs, 2)
}

func TestRecommend_FitsBeforeLateEvent(t *testing.T) {
	late := model.CalendarEvent{
		Title: "Rehearsal",
		Start: model.At(time.Date(2025, 3, 3, 22, 0, 0, 0, time.UTC)),
		End:   model.At(time.Date(2025, 3, 3, 23, 0, 0, 0, time.UTC)),
	}
	talk := campusEvent("talk", 0, "21:00", 45, model.CategoryAcademic)
	talk.Title = "Evening talk"

	recs := Recommend([]model.CalendarEvent{late}, []model.CatalogueEvent{talk}, DefaultOptions(today))
	require.Len(t, recs, 1)
	assert.Equal(t, model.MatchTime, recs[0].Match)
	assert.GreaterOrEqual(t, recs[0].Confidence, 1.5)
	assert.Equal(t, time.Date(2025, 3, 3, 22, 0, 0, 0, time.UTC), recs[0].RecommendedFor.End)
}
