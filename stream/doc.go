// Package stream provides lazy, pull-based iteration used to walk fragments,
// domains and pass results in a deterministic order.
//
// No work happens until values are pulled with Collect or ForEach:
//
//	leaves := stream.FromSlice(tree.Leaves())
//	kept := stream.Filter(leaves, func(f datatree.Fragment) bool { return f.Mesh != nil })
//	sizes := stream.Map(kept, func(_ context.Context, f datatree.Fragment) (int64, error) {
//	    return f.Mesh.SizeBytes(), nil
//	})
//	total, err := stream.Reduce(ctx, sizes, int64(0), func(acc, n int64) int64 { return acc + n })
package stream
