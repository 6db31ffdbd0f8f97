// Package queryir provides a small query representation for reading
// committed activation rows from the relational store.
//
// Queries are built as values and compiled to parameterized SQL by
// internal/querysql. Keeping reads in this form means every finder in the
// store shares one code path for filtering, parameter binding and
// deterministic ordering.
//
// Query and Predicate are sealed interfaces using the marker method pattern,
// so compilers can switch exhaustively over the node types:
//
//	switch q := query.(type) {
//	case Select, *Select:
//	    // the only query node
//	}
//
// Supported predicates:
//   - Equals: field = literal
//   - In: field IN (literals...)
//   - IsNull: field IS NULL
//   - And: conjunction, empty means always true
//
// Literal values are restricted to string, int, int64 and bool. Field and
// table names are identifiers and are checked by Validate, since compilers
// interpolate them into the statement text.
package queryir
