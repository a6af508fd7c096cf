package service

import (
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance runs the browse API scenarios against the tables written by
// WriteFixture.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	spellSummary := JSON{
		"name":       "Spell",
		"schema":     "Spell",
		"decoder":    "Spell",
		"records":    3,
		"table_hash": FixtureSpellHash,
		"framing": JSON{
			"id_block":  false,
			"key_block": false,
		},
		"hotfixes": 1,
	}

	frostbolt := `{"aura_description":"Movement slowed.","description":"Launches a bolt of frost at the enemy.","id":116,"name_subtext":"Rank 1"}`
	fireball := `{"aura_description":"","description":"Hurls a fiery ball at the enemy.","id":133,"name_subtext":"Rank 1"}`
	frostboltRank2 := `{"aura_description":"Movement slowed.","description":"Launches a bolt of frost at the enemy.","id":205,"name_subtext":"Rank 2"}`

	lines := func(l ...string) string {
		return strings.Join(l, "\n") + "\n"
	}

	a.Alternative("List tables", func(a *biff.A) {
		resp := apiRequest("GET", "/tables").Do()
		Save(resp, "List tables", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), []JSON{spellSummary})
	})

	a.Alternative("Retrieve table", func(a *biff.A) {
		resp := apiRequest("GET", "/tables/Spell").Do()
		Save(resp, "Retrieve table", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), spellSummary)
	})

	a.Alternative("Retrieve table - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/tables/Missing").Do()
		Save(resp, "Retrieve table - not found", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"error": JSON{
				"message":     "table not found: 'Missing'",
				"description": "table 'Missing' does not exist",
			},
		})
	})

	a.Alternative("Retrieve record", func(a *biff.A) {
		resp := apiRequest("GET", "/tables/Spell/records/116").Do()
		Save(resp, "Retrieve record", `
			Returns one decoded record by id. Strings are resolved through the
			table string block.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"id":               116,
			"name_subtext":     "Rank 1",
			"description":      "Launches a bolt of frost at the enemy.",
			"aura_description": "Movement slowed.",
		})
	})

	a.Alternative("Retrieve record - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/tables/Spell/records/117").Do()
		Save(resp, "Retrieve record - not found", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Retrieve record - bad id", func(a *biff.A) {
		resp := apiRequest("GET", "/tables/Spell/records/frostbolt").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Find with default limit", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Spell:find").
			WithBodyJson(JSON{}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyString(), lines(frostbolt))
	})

	a.Alternative("Find with filter", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Spell:find").
			WithBodyJson(JSON{
				"filter": JSON{
					"description": "Launches a bolt of frost at the enemy.",
				},
				"limit": -1,
			}).Do()
		Save(resp, "Find - filter", `
			Scans the whole table and writes every matching record as one JSON
			line. A negative limit returns every match.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyString(), lines(frostbolt, frostboltRank2))

		a.Alternative("Skip", func(a *biff.A) {
			resp := apiRequest("POST", "/tables/Spell:find").
				WithBodyJson(JSON{
					"filter": JSON{
						"description": "Launches a bolt of frost at the enemy.",
					},
					"skip":  1,
					"limit": 10,
				}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.BodyString(), lines(frostboltRank2))
		})
	})

	a.Alternative("Find with select", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Spell:find").
			WithBodyJson(JSON{
				"limit":  -1,
				"select": []string{"id", "name_subtext"},
			}).Do()
		Save(resp, "Find - select", `
			Keeps only the selected paths of every record.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyString(), lines(
			`{"id":116,"name_subtext":"Rank 1"}`,
			`{"id":133,"name_subtext":"Rank 1"}`,
			`{"id":205,"name_subtext":"Rank 2"}`,
		))
	})

	a.Alternative("Find all", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Spell:find").
			WithBodyJson(JSON{
				"limit": -1,
			}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyString(), lines(frostbolt, fireball, frostboltRank2))
	})

	a.Alternative("Find - malformed body", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Spell:find").
			WithBodyString(`{"limit": `).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Hotfixes", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Spell:hotfixes").
			WithBodyJson(JSON{
				"limit": -1,
			}).Do()
		Save(resp, "Hotfixes", `
			Writes the valid hotfix cache entries of the table decoded with the
			table schema.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyString(), lines(
			`{"aura_description":"","description":"Hurls a fiery ball that burns the enemy.","id":133,"name_subtext":"Rank 1"}`,
		))
	})

	a.Alternative("Hotfixes - table not found", func(a *biff.A) {
		resp := apiRequest("POST", "/tables/Missing:hotfixes").
			WithBodyJson(JSON{}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})
}
