package model

type Plan struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Credits      uint   `json:"credits"`
	Price        uint   `json:"price"`
	DurationDays uint   `json:"duration_days"`
}

// DefaultPlans is the catalog loaded by `cli seed-plans`. Prices are in KES.
func DefaultPlans() []*Plan {
	return []*Plan{
		{Name: "Test", Credits: 5, Price: 5, DurationDays: 30},
		{Name: "Basic", Credits: 200, Price: 200, DurationDays: 30},
		{Name: "Standard", Credits: 500, Price: 500, DurationDays: 30},
		{Name: "Advanced", Credits: 1000, Price: 1000, DurationDays: 30},
		{Name: "Pro", Credits: 5000, Price: 5000, DurationDays: 30},
		{Name: "Enterprise", Credits: 10000, Price: 10000, DurationDays: 30},
		{Name: "Platinum", Credits: 50000, Price: 50000, DurationDays: 30},
		{Name: "Diamond", Credits: 100000, Price: 100000, DurationDays: 30},
	}
}
