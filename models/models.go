package models

// All returns every model in migration order.
func All() []any {
	return []any{
		&Brand{},
		&Subcategory{},
		&ScheduleRule{},
		&Draft{},
		&PostJob{},
		&Publish{},
		&SocialAccount{},
		&BackgroundTask{},
	}
}
