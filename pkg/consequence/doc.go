// Package consequence maps variant keys to functional consequence terms by
// dispatching batches of keys to an external annotator over a bounded
// worker pool.
//
// A run deduplicates its input, partitions the sorted keys into batches and
// hands each batch to an Annotator. Batches that keep failing after their
// retries are dropped as a unit and reported as *errors.BatchError values;
// nothing from a failed batch reaches the aggregate. Aggregation starts only
// once every batch has returned or definitively failed.
//
// Example:
//
//	mapper, err := consequence.NewMapper(consequence.NewCommandAnnotator("vep-wrapper"),
//		consequence.WithBatchSize(200),
//		consequence.WithWorkers(20),
//	)
//	if err != nil {
//		return err
//	}
//	result, err := mapper.Run(ctx, keys)
//	if err != nil {
//		// result.Failed holds the batches to re-dispatch
//		return err
//	}
//	return consequence.WriteTable(w, result.Records)
package consequence
