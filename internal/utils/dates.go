package utils

import "time"

// YearsToExpiration returns the time between a quote date and an expiration
// date as a calendar-day year fraction (days / 365), the convention the
// calibration pipeline uses for T.
func YearsToExpiration(quote, expiration time.Time) float64 {
	return expiration.Sub(quote).Hours() / 24.0 / 365.0
}

// NextMonthlyExpiration returns the next standard monthly options expiration
// (third Friday) in YYYY-MM-DD format:
// - Third Friday of the current month if we haven't reached expiration week yet
// - Third Friday of next month if we're in or past the expiration week
func NextMonthlyExpiration() string {
	today := time.Now()
	currentMonth := today.Month()
	currentYear := today.Year()

	// Find 3rd Friday of current month
	firstDay := time.Date(currentYear, currentMonth, 1, 0, 0, 0, 0, today.Location())
	firstFriday := firstDay
	for firstFriday.Weekday() != time.Friday {
		firstFriday = firstFriday.AddDate(0, 0, 1)
	}
	thirdFriday := firstFriday.AddDate(0, 0, 14)

	// If current day is in the week of 3rd Friday or past it, use next month
	weekStart := thirdFriday.AddDate(0, 0, -7)

	if today.After(weekStart) || today.Equal(weekStart) {
		nextMonth := currentMonth + 1
		nextYear := currentYear
		if nextMonth > 12 {
			nextMonth = 1
			nextYear++
		}
		nextFirstDay := time.Date(nextYear, nextMonth, 1, 0, 0, 0, 0, today.Location())
		nextFirstFriday := nextFirstDay
		for nextFirstFriday.Weekday() != time.Friday {
			nextFirstFriday = nextFirstFriday.AddDate(0, 0, 1)
		}
		return nextFirstFriday.AddDate(0, 0, 14).Format("2006-01-02")
	}

	return thirdFriday.Format("2006-01-02")
}
