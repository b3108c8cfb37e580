// Package pagination provides a strategy-polymorphic view over the paginated
// list endpoints of the marketing API.
//
// Endpoints page in one of three ways: by page number (offset), by opaque
// position cursor (cursor) or by a forward-only continuation token (token).
// A Registry maps endpoint names to their EndpointConfig. A Manager built for
// one endpoint translates Options into query parameters and raw responses into
// a Result carrying a PageInfo. Iterators drive a FetchFunc page by page.
//
// Example usage:
//
//	registry := pagination.NewDefaultRegistry()
//	factory := pagination.NewFactory(registry, logger)
//	it := pagination.NewIteratorFor[Contact](factory, "contacts", fetch,
//		pagination.WithMaxResults(500))
//	for contact, err := range it.All(ctx) {
//		if err != nil {
//			return err
//		}
//		process(contact)
//	}
//
// Each call to Pages, Batches or All starts again from the initial options,
// so an Iterator may be traversed repeatedly and concurrently.
//
// Offset and cursor endpoints that omit totals are continued on a full-page
// heuristic. Such pages report SignalInferred; a final full page then costs
// one extra request that returns no items.
package pagination
