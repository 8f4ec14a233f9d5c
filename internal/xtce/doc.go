// Package xtce renders a document tree as XTCE 1.2 XML.
//
// It knows only the structural tree produced by the document package.
// Tag spelling, attribute naming and element ordering follow the XTCE
// 1.2 schema; nothing here feeds back into layout resolution.
package xtce
