package migrations

import (
	"fmt"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"

	"studyseat-system/models"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("seats")

		collection.Fields.Add(
			&core.NumberField{
				Name:     "number",
				Required: true,
				OnlyInt:  true,
				Min:      types.Pointer(1.0),
				Max:      types.Pointer(float64(models.TotalSeats)),
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"available", "booked", "reserved", "maintenance", "expired"},
			},
			&core.TextField{
				Name: "occupant",
			},
			&core.SelectField{
				Name:      "shift",
				MaxSelect: 1,
				Values:    []string{"morning", "afternoon", "evening", "full_day"},
			},
			&core.DateField{
				Name: "booked_at",
			},
			&core.DateField{
				Name: "expires_at",
			},
			&core.TextField{
				Name: "last_payment",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_seats_number", true, "number", "")
		collection.AddIndex("idx_seats_occupant", false, "occupant", "")

		if err := app.Save(collection); err != nil {
			return err
		}

		// Seed the fixed floor: seats 1..60, all available.
		for n := 1; n <= models.TotalSeats; n++ {
			record := core.NewRecord(collection)
			record.Set("number", n)
			record.Set("status", "available")
			if err := app.Save(record); err != nil {
				return fmt.Errorf("seeding seat %d: %w", n, err)
			}
		}

		return nil
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("seats")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
