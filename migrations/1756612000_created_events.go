package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.TextField{Name: "venue"},
			&core.DateField{Name: "starts_at"},
			&core.NumberField{Name: "max_tickets_per_user", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{"draft", "published", "ended"}},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(events); err != nil {
			return err
		}

		classes := core.NewBaseCollection("ticket_classes")
		classes.Fields.Add(
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
			&core.TextField{Name: "name", Required: true},
			&core.NumberField{Name: "capacity", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "available", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "reserved", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "sold", OnlyInt: true, Min: types.Pointer(0.0)},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		classes.AddIndex("idx_ticket_classes_event", false, "event", "")

		return app.Save(classes)
	}, func(app core.App) error {
		for _, name := range []string{"ticket_classes", "events"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
