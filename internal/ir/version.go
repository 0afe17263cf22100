package ir

// EngineVersion is the ckpt release. Journals record the version that
// created them.
const EngineVersion = "0.1.0"
