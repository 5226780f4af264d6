// Package http implements the HTTP handlers of the tabtweak web service.
// Handlers stay thin: they parse and validate requests, call a service and
// render the result. Errors are rendered as RFC 7807 problem details by the
// shared error handler.
//
// # Routes
//
//	GET  /api/datasets                       registered datasets and input availability
//	GET  /api/datasets/files                 data files in the input directory
//	GET  /api/datasets/{name}                dataset definition
//	GET  /api/datasets/{name}/tweak          tweaked table preview (?limit=)
//	POST /api/datasets/{name}/tweak          re-read and re-tweak, bypassing the cache
//	GET  /api/datasets/{name}/describe       numeric column summaries
//	GET  /api/datasets/{name}/corr?x=&y=     pairwise Pearson correlation
//	POST /api/datasets/{name}/pivot          filter then group and aggregate
//	POST /api/datasets/{name}/resample       bin a timestamp column by period
//
//	POST /api/operations                     queue load, tweak and export
//	POST /api/operations/run                 run an operation and wait
//	GET  /api/operations/{id}                latest operation snapshot
//	GET  /api/operations/jobs                list jobs (?status=&dataset=&limit=)
//	GET  /api/operations/jobs/{id}           job status with polling hints
//	POST /api/operations/jobs/{id}/cancel    cancel a pending or running job
//
// Request bodies are decoded and validated with the validation middleware:
//
//	var req services.PivotRequest
//	if err := h.validation.Decode(r, &req); err != nil {
//	    h.errorHandler.HandleError(w, r, err)
//	    return
//	}
package http
