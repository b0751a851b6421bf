// Package mdb holds the MDB (Multi-Drop Bus) vocabulary used by a level 1
// cashless peripheral: master command and sub-command bytes, reader reply
// bytes, payload builders for both directions, amount scaling, and the
// human-readable names used in traces.
//
// Nothing here touches the wire. The cp package frames these payloads and the
// cashless package decides which of them to send.
package mdb
