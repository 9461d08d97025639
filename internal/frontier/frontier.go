package frontier

/*
Frontier Responsibilities
- Maintain BFS ordering
- Hand admitted candidates to workers safely under concurrency
- Knows nothing about:
	- fetching
	- rewriting
	- assets
	- storage

It is a data structure module, not a pipeline executor. Admission
semantics (scope, dedup, caps) live in the scheduler; the frontier only
preserves discovery order.
*/
