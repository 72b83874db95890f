package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"

	"studyseat-system/models"
)

// Adds the booking-state fields to the auth collection: phone for profile
// completeness, seat_number and payment_status as the denormalized view the
// profile endpoints read.
func init() {
	m.Register(func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.Fields.Add(
			&core.TextField{
				Name: "phone",
				Max:  20,
			},
			&core.NumberField{
				Name:    "seat_number",
				OnlyInt: true,
				Min:     types.Pointer(0.0),
				Max:     types.Pointer(float64(models.TotalSeats)),
			},
			&core.SelectField{
				Name:      "payment_status",
				MaxSelect: 1,
				Values:    []string{"pending", "paid", "failed", "refunded", "cancelled"},
			},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection.Fields.RemoveByName("phone")
		collection.Fields.RemoveByName("seat_number")
		collection.Fields.RemoveByName("payment_status")

		return app.Save(collection)
	})
}
