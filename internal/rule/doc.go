// Package rule defines the typed intermediate representation of a compliance
// control: governance metadata, ontology bindings, the population-derivation
// pipeline, and the assertion taxonomy.
//
// The pipeline actions and assertions are sealed sum types. The closed sets
// exist to reject shapes an untrusted external generator might hallucinate:
// construction validation fails with a SchemaViolation naming the offending
// field, never by silent coercion. Adding a new variant forces every consuming
// type switch (compiler, validator, codec) to be updated.
//
// A Rule is immutable once compiled. The package performs no I/O and never
// interprets governance or evidence metadata.
package rule
