package fiscal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Config{EndMonth: 12, EndDay: 31}.Validate())
	assert.NoError(t, Config{EndMonth: 2, EndDay: 29}.Validate())
	assert.ErrorIs(t, Config{EndMonth: 0, EndDay: 31}.Validate(), ErrInvalidEndMonth)
	assert.ErrorIs(t, Config{EndMonth: 13, EndDay: 1}.Validate(), ErrInvalidEndMonth)
	assert.ErrorIs(t, Config{EndMonth: 6, EndDay: 0}.Validate(), ErrInvalidEndDay)
	assert.ErrorIs(t, Config{EndMonth: 6, EndDay: 32}.Validate(), ErrInvalidEndDay)
}

func TestYearEndLeapYearClamping(t *testing.T) {
	cfg := Config{EndMonth: 2, EndDay: 29}

	assert.Equal(t, date(2023, time.February, 28), cfg.YearEnd(2023))
	assert.Equal(t, date(2024, time.February, 29), cfg.YearEnd(2024))
}

func TestYearEndShortMonthClamping(t *testing.T) {
	cfg := Config{EndMonth: 4, EndDay: 31}

	assert.Equal(t, date(2024, time.April, 30), cfg.YearEnd(2024))
}

func TestYearForDateCalendarBoundary(t *testing.T) {
	cfg := Config{EndMonth: 12, EndDay: 31}

	assert.Equal(t, 2024, cfg.YearForDate(date(2024, time.December, 31)))
	assert.Equal(t, 2025, cfg.YearForDate(date(2025, time.January, 1)))
}

func TestYearForDateOffsetYearEnd(t *testing.T) {
	cfg := Config{EndMonth: 3, EndDay: 31}

	assert.Equal(t, 2024, cfg.YearForDate(date(2024, time.March, 31)))
	assert.Equal(t, 2025, cfg.YearForDate(date(2024, time.April, 1)))
	assert.Equal(t, 2025, cfg.YearForDate(date(2024, time.December, 25)))
}

func TestCurrentPeriod(t *testing.T) {
	cfg := Config{EndMonth: 3, EndDay: 31}

	start, end := cfg.CurrentPeriod(date(2024, time.February, 10))
	assert.Equal(t, date(2023, time.April, 1), start)
	assert.Equal(t, date(2024, time.March, 31), end)

	start, end = cfg.CurrentPeriod(date(2024, time.April, 1))
	assert.Equal(t, date(2024, time.April, 1), start)
	assert.Equal(t, date(2025, time.March, 31), end)

	// The year-end itself still belongs to the closing period.
	start, end = cfg.CurrentPeriod(date(2024, time.March, 31))
	assert.Equal(t, date(2023, time.April, 1), start)
	assert.Equal(t, date(2024, time.March, 31), end)
}

func TestCurrentPeriodIgnoresTimeOfDay(t *testing.T) {
	cfg := Config{EndMonth: 12, EndDay: 31}

	_, end := cfg.CurrentPeriod(time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, date(2024, time.December, 31), end)
}

func TestPeriodForYear(t *testing.T) {
	cfg := Config{EndMonth: 12, EndDay: 31}
	start, end := cfg.PeriodForYear(2024)
	assert.Equal(t, date(2024, time.January, 1), start)
	assert.Equal(t, date(2024, time.December, 31), end)

	leap := Config{EndMonth: 2, EndDay: 29}
	start, end = leap.PeriodForYear(2024)
	// 2023 is not a leap year, so the previous period closed Feb 28.
	assert.Equal(t, date(2023, time.March, 1), start)
	assert.Equal(t, date(2024, time.February, 29), end)
}
