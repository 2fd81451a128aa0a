package vecmem_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/vecmem"
	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/model"
)

func Example() {
	ctx := context.Background()

	db, err := vecmem.Open(ctx, vecmem.DefaultConfig(), vecmem.WithLogger(vecmem.NoopLogger()))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	for _, rec := range []model.Record{
		{ID: "X", Vector: []float32{1, 0}},
		{ID: "Y", Vector: []float32{0, 1}},
		{ID: "Z", Vector: []float32{-1, 0}},
	} {
		if _, err := db.Add(ctx, rec); err != nil {
			panic(err)
		}
	}

	matches, err := db.Search(ctx, []float32{1, 0}, backend.WithLimit(2))
	if err != nil {
		panic(err)
	}
	for _, m := range matches {
		fmt.Printf("%s %.1f\n", m.ID, m.Score)
	}

	// Output:
	// X 1.0
	// Y 0.0
}

func ExampleDB_ForTenant() {
	ctx := context.Background()

	db, _ := vecmem.Open(ctx, vecmem.DefaultConfig(), vecmem.WithLogger(vecmem.NoopLogger()))
	defer db.Close()

	alice := db.ForTenant(backend.Tenant{UserID: "alice"})
	bob := db.ForTenant(backend.Tenant{UserID: "bob"})

	_, _ = alice.Add(ctx, model.Record{ID: "note", Vector: []float32{1, 1}})

	a, _ := alice.Count(ctx, nil)
	b, _ := bob.Count(ctx, nil)
	fmt.Println(a, b)

	// Output:
	// 1 0
}
