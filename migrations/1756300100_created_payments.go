package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"

	"studyseat-system/models"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payments")

		collection.Fields.Add(
			&core.TextField{
				Name:     "order_id",
				Required: true,
			},
			&core.TextField{
				Name: "payment_id",
			},
			&core.TextField{
				Name: "signature",
			},
			// Stored as text: decimal amounts must survive without float
			// drift.
			&core.TextField{
				Name:     "amount",
				Required: true,
			},
			&core.TextField{
				Name:     "account",
				Required: true,
			},
			&core.NumberField{
				Name:    "seat_number",
				OnlyInt: true,
				Min:     types.Pointer(0.0),
				Max:     types.Pointer(float64(models.TotalSeats)),
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
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "paid", "failed", "refunded", "cancelled"},
			},
			&core.SelectField{
				Name:      "verification",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "verified", "failed"},
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

		collection.AddIndex("idx_payments_order_id", true, "order_id", "")
		collection.AddIndex("idx_payments_account", false, "account", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
