package service

import (
	"os"
	"path/filepath"

	"github.com/fulldump/dbcextract/database"
	"github.com/fulldump/dbcextract/wdc1"
	"github.com/fulldump/dbcextract/wdc1/wdc1test"
	"github.com/fulldump/dbcextract/xfth/xfthtest"
)

const FixtureSpellHash = 0x4B3F0E16

// WriteFixture writes a small Spell table, a hotfix cache patching it and an
// unrelated file into dir. The returned config opens them.
func WriteFixture(dir string) (*database.Config, error) {

	spell := &wdc1test.Builder{
		TableHash: FixtureSpellHash,
		Fields: []wdc1test.Field{
			{Storage: wdc1.StorageNone},
			{Storage: wdc1.StorageNone},
			{Storage: wdc1.StorageNone},
		},
		IDList: true,
	}
	empty := spell.AddString("")
	rank1 := spell.AddString("Rank 1")
	rank2 := spell.AddString("Rank 2")
	frost := spell.AddString("Launches a bolt of frost at the enemy.")
	fire := spell.AddString("Hurls a fiery ball at the enemy.")
	chilled := spell.AddString("Movement slowed.")
	spell.Rows = []wdc1test.Row{
		{ID: 116, Values: [][]uint64{{rank1}, {frost}, {chilled}}},
		{ID: 133, Values: [][]uint64{{rank1}, {fire}, {empty}}},
		{ID: 205, Values: [][]uint64{{rank2}, {frost}, {chilled}}},
	}

	err := spell.WriteFile(filepath.Join(dir, "Spell.db2"))
	if err != nil {
		return nil, err
	}

	cache := &xfthtest.Builder{
		Build: 27843,
		Entries: []xfthtest.Entry{
			{PushID: 10, TableHash: FixtureSpellHash, RecordID: 133, Payload: xfthtest.NewPayload().
				CString("Rank 1").CString("Hurls a fiery ball that burns the enemy.").CString("").Bytes()},
			{PushID: 11, TableHash: FixtureSpellHash, RecordID: 400, Status: 2},
			{PushID: 12, TableHash: 0x12345678, RecordID: 1, Payload: xfthtest.NewPayload().U32(1).Bytes()},
		},
	}
	hotfix := filepath.Join(dir, "DBCache.bin")
	err = cache.WriteFile(hotfix)
	if err != nil {
		return nil, err
	}

	err = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not a table"), 0666)
	if err != nil {
		return nil, err
	}

	return &database.Config{
		Dir:    dir,
		Hotfix: hotfix,
	}, nil
}
