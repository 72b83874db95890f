package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"

	"studyseat-system/models"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("booking_history")

		collection.Fields.Add(
			&core.NumberField{
				Name:     "seat_number",
				Required: true,
				OnlyInt:  true,
				Min:      types.Pointer(1.0),
				Max:      types.Pointer(float64(models.TotalSeats)),
			},
			&core.TextField{
				Name:     "account",
				Required: true,
			},
			&core.SelectField{
				Name:      "shift",
				MaxSelect: 1,
				Values:    []string{"morning", "afternoon", "evening", "full_day"},
			},
			&core.NumberField{
				Name:    "months",
				OnlyInt: true,
			},
			&core.DateField{
				Name:     "started_at",
				Required: true,
			},
			&core.DateField{
				Name: "ended_at",
			},
			&core.SelectField{
				Name:      "reason",
				MaxSelect: 1,
				Values:    []string{"expired", "manual", "admin", "payment_failed", "user_request", "seat_change"},
			},
			&core.TextField{
				Name: "payment_ref",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
		)

		collection.AddIndex("idx_history_account", false, "account", "")
		collection.AddIndex("idx_history_seat", false, "seat_number", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("booking_history")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
