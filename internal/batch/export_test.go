package batch

import "time"

func SetClock(j *PaymentReminderJob, now func() time.Time) {
	j.now = now
}
