package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

func init() {
	m.Register(func(app core.App) error {
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		classes, err := app.FindCollectionByNameOrId("ticket_classes")
		if err != nil {
			return err
		}
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		orders := core.NewBaseCollection("orders")
		orders.Fields.Add(
			&core.RelationField{Name: "user", CollectionId: users.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
			&core.SelectField{Name: "status", MaxSelect: 1, Required: true,
				Values: []string{"pending", "completed", "cancelled", "expired"}},
			&core.NumberField{Name: "total", Min: types.Pointer(0.0)},
			&core.DateField{Name: "expires_at", Required: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		// The sweeper scans by (status, expires_at) every tick.
		orders.AddIndex("idx_orders_status_expires", false, "status, expires_at", "")
		orders.AddIndex("idx_orders_user_event", false, "user, event", "")
		if err := app.Save(orders); err != nil {
			return err
		}

		tickets := core.NewBaseCollection("tickets")
		tickets.Fields.Add(
			&core.RelationField{Name: "order", CollectionId: orders.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1, Required: true},
			&core.RelationField{Name: "class", CollectionId: classes.Id, MaxSelect: 1, Required: true},
			&core.TextField{Name: "serial", Required: true},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.SelectField{Name: "status", MaxSelect: 1, Required: true,
				Values: []string{"reserved", "sold", "released"}},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		tickets.AddIndex("idx_tickets_order", false, "`order`", "")
		tickets.AddIndex("idx_tickets_serial", true, "serial", "")

		return app.Save(tickets)
	}, func(app core.App) error {
		for _, name := range []string{"tickets", "orders"} {
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
