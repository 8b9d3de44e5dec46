// Package repository define las entidades persistidas (User, Connection) y las
// interfaces de almacenamiento que implementan los adapters de internal/store.
//
// Los adapters (memory, postgres, sqlite) deben respetar:
//   - a lo sumo una Connection por (UserID, Provider)
//   - escrituras de tokens atómicas por fila (sin mezclar campos de refreshes distintos)
//   - DeleteConnection idempotente
package repository
