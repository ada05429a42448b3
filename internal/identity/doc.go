// Package identity define el modelo de personas y la identidad activa.
//
// Un principal autenticado controla una persona citizen y cero o más personas
// vport. El resto de la aplicación observa exactamente una ActiveIdentity,
// resuelta a un actor id durable. Los subpaquetes implementan las piezas:
//
//   - personacache: cache durable por principal (lista, mapa persona→actor, selector activo)
//   - resolver: resolución de actor ids y cadena de ownership
//   - notifier: publicación deduplicada de transiciones
//   - machine: el state machine que reconcilia todo lo anterior
package identity
