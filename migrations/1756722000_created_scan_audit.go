package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pbc_scan_audit01",
			"name": "scan_audit",
			"type": "base",
			"system": false,
			"fields": [
				{
					"id": "text_staff_id",
					"name": "staff_id",
					"type": "text",
					"required": false,
					"presentable": false
				},
				{
					"id": "text_ticket_ref",
					"name": "ticket_ref",
					"type": "text",
					"required": true,
					"presentable": true
				},
				{
					"id": "select_method",
					"name": "method",
					"type": "select",
					"required": true,
					"presentable": false,
					"maxSelect": 1,
					"values": [
						"qr",
						"manual"
					]
				},
				{
					"id": "select_result",
					"name": "result",
					"type": "select",
					"required": true,
					"presentable": false,
					"maxSelect": 1,
					"values": [
						"valid",
						"invalid",
						"queued",
						"malformed",
						"error"
					]
				},
				{
					"id": "text_reason",
					"name": "reason",
					"type": "text",
					"required": false,
					"presentable": false
				},
				{
					"id": "text_location",
					"name": "location",
					"type": "text",
					"required": false,
					"presentable": false
				},
				{
					"id": "bool_offline",
					"name": "offline",
					"type": "bool",
					"required": false,
					"presentable": false
				},
				{
					"id": "autodate_created",
					"name": "created",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": false
				},
				{
					"id": "autodate_updated",
					"name": "updated",
					"type": "autodate",
					"onCreate": true,
					"onUpdate": true
				}
			],
			"indexes": [
				"CREATE INDEX idx_scan_audit_created ON scan_audit (created)",
				"CREATE INDEX idx_scan_audit_ticket_ref ON scan_audit (ticket_ref)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pbc_scan_audit01")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
